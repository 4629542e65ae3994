package posts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/queue"
	"github.com/worth-network/worthx/pkg/rpc"
	"github.com/worth-network/worthx/pkg/utils"
)

// Level is the kind of refresh a dirty post needs. Lower values win when a
// post is marked more than once before a flush.
type Level int

const (
	LevelInsert Level = iota
	LevelPayout
	LevelUpdate
	LevelUpvote
	LevelRecount
)

var levelNames = [...]string{"insert", "payout", "update", "upvote", "recount"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

const (
	flushBatch   = 1000
	missingBatch = 250000
)

// Counts is the number of posts flushed per level.
type Counts struct {
	Insert  int
	Payout  int
	Update  int
	Upvote  int
	Recount int
}

func (c *Counts) add(l Level) {
	switch l {
	case LevelInsert:
		c.Insert++
	case LevelPayout:
		c.Payout++
	case LevelUpdate:
		c.Update++
	case LevelUpvote:
		c.Upvote++
	case LevelRecount:
		c.Recount++
	}
}

// ByLevel keys the counts by level name.
func (c Counts) ByLevel() map[string]int {
	return map[string]int{
		LevelInsert.String():  c.Insert,
		LevelPayout.String():  c.Payout,
		LevelUpdate.String():  c.Update,
		LevelUpvote.String():  c.Upvote,
		LevelRecount.String(): c.Recount,
	}
}

func (c Counts) Total() int {
	return c.Insert + c.Payout + c.Update + c.Upvote + c.Recount
}

type CacheStore interface {
	PostID(ctx context.Context, author, permlink string) (int64, bool, error)
	PostsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Post, error)
	LastPostID(ctx context.Context) (int64, error)
	LastCachedPostID(ctx context.Context) (int64, error)
	LivePostCount(ctx context.Context, lbound, ubound int64) (int64, error)
	UncachedPosts(ctx context.Context, afterID int64, limit int) ([]models.UncachedPost, error)
	PaidoutPosts(ctx context.Context, date time.Time) ([]models.PostRef, error)
	UpsertCachedPosts(ctx context.Context, posts []*models.CachedPost) error
	DeleteCachedPost(ctx context.Context, postID int64) error
	IsIgnoring(ctx context.Context, follower, following int64) (bool, error)
	NotificationExists(ctx context.Context, typeID int, srcID, dstID, postID int64) (bool, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Content fetches post snapshots from the chain.
type Content interface {
	GetContentBatch(ctx context.Context, keys []rpc.PostKey) ([]*rpc.Content, error)
}

type CacheAccounts interface {
	Exists(name string) bool
	GetID(name string) (int64, error)
	DefaultScore(name string) (int, error)
	DirtySet(names []string) int
}

type Muter interface {
	IsMuted(name string) bool
}

type Notifier interface {
	Write(ctx context.Context, n notify.Notice) error
}

// Cache keeps worth_posts_cache in step with the chain. Posts are marked
// dirty by url while blocks are applied and refreshed from the chain in
// batches on Flush. Single writer.
type Cache struct {
	logger   *zap.Logger
	store    CacheStore
	chain    Content
	accounts CacheAccounts
	mutes    Muter
	notifier Notifier
	phase    Phase

	queue    *queue.UniqueFIFO[string]
	levels   map[string]Level
	ids      map[string]int64
	noids    map[string]struct{}
	votes    map[string][]string
	promoted map[int64]decimal.Decimal

	lastID       int64
	lastIDLoaded bool
}

func NewCache(logger *zap.Logger, store CacheStore, chain Content, accounts CacheAccounts, mutes Muter, notifier Notifier, phase Phase) *Cache {
	return &Cache{
		logger:   logger,
		store:    store,
		chain:    chain,
		accounts: accounts,
		mutes:    mutes,
		notifier: notifier,
		phase:    phase,
		queue:    queue.New[string](),
		levels:   make(map[string]Level),
		ids:      make(map[string]int64),
		noids:    make(map[string]struct{}),
		votes:    make(map[string][]string),
		promoted: make(map[int64]decimal.Decimal),
	}
}

func postURL(author, permlink string) string {
	return author + "/" + permlink
}

// dirty queues a post at level, upgrading the level of an already queued one.
// A zero postID means the id is resolved at flush time.
func (c *Cache) dirty(level Level, author, permlink string, postID int64) {
	url := postURL(author, permlink)
	if c.queue.Add(url) {
		c.levels[url] = level
	} else if level < c.levels[url] {
		c.levels[url] = level
	}

	if postID == 0 {
		if _, ok := c.ids[url]; !ok {
			c.noids[url] = struct{}{}
		}
		return
	}
	if prev, ok := c.ids[url]; ok && prev != postID {
		c.logger.Warn("post id changed while queued", zap.String("url", url), zap.Int64("old", prev), zap.Int64("new", postID))
	}
	c.ids[url] = postID
	delete(c.noids, url)
}

func (c *Cache) Insert(author, permlink string, postID int64) {
	c.dirty(LevelInsert, author, permlink, postID)
}

func (c *Cache) Update(author, permlink string, postID int64) {
	c.dirty(LevelUpdate, author, permlink, postID)
}

// Vote marks a post for a vote-level refresh. A non-empty voter is
// considered for a vote notification on flush.
func (c *Cache) Vote(author, permlink string, postID int64, voter string) {
	c.dirty(LevelUpvote, author, permlink, postID)
	if voter == "" {
		return
	}
	url := postURL(author, permlink)
	c.votes[url] = append(c.votes[url], voter)
}

func (c *Cache) Recount(author, permlink string, postID int64) {
	c.dirty(LevelRecount, author, permlink, postID)
}

// UpdatePromotedAmount records a promoted balance for the next write of the post.
func (c *Cache) UpdatePromotedAmount(postID int64, amount decimal.Decimal) {
	c.promoted[postID] = amount
}

// Pending returns the number of queued posts.
func (c *Cache) Pending() int {
	return c.queue.Len()
}

// Delete drops a post from the cache table and from the queue.
func (c *Cache) Delete(ctx context.Context, postID int64, author, permlink string) error {
	url := postURL(author, permlink)
	c.queue.Remove(url)
	delete(c.levels, url)
	delete(c.ids, url)
	delete(c.noids, url)
	delete(c.votes, url)
	delete(c.promoted, postID)
	if err := c.store.DeleteCachedPost(ctx, postID); err != nil {
		return fmt.Errorf("delete cached post %d: %w", postID, err)
	}
	return nil
}

// Undelete re-creates the cache row of a restored post. Posts below the
// cache cursor get a placeholder row refreshed on the next flush.
func (c *Cache) Undelete(ctx context.Context, postID int64, author, permlink, category string) error {
	last, err := c.lastCachedID(ctx)
	if err != nil {
		return err
	}
	if postID > last {
		c.Insert(author, permlink, postID)
		return nil
	}
	placeholder := &models.CachedPost{
		PostID:    postID,
		Author:    author,
		Permlink:  permlink,
		Category:  category,
		PayoutAt:  time.Unix(0, 0).UTC(),
		CreatedAt: time.Unix(0, 0).UTC(),
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
	if err := c.store.UpsertCachedPosts(ctx, []*models.CachedPost{placeholder}); err != nil {
		return fmt.Errorf("undelete cached post %d: %w", postID, err)
	}
	c.Update(author, permlink, postID)
	return nil
}

// DirtyPaidouts queues every post whose payout time has passed, and their authors.
func (c *Cache) DirtyPaidouts(ctx context.Context, date time.Time) (int, error) {
	refs, err := c.store.PaidoutPosts(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("paidout posts: %w", err)
	}
	authors := make([]string, 0, len(refs))
	for _, ref := range refs {
		c.dirty(LevelPayout, ref.Author, ref.Permlink, ref.ID)
		authors = append(authors, ref.Author)
	}
	if len(refs) > 0 {
		c.accounts.DirtySet(utils.Dedup(authors))
		c.logger.Debug("posts paid out", zap.Int("count", len(refs)))
	}
	return len(refs), nil
}

// DirtyMissing queues up to limit live posts above the cache cursor and
// returns the id gap between the posts table and the cache.
func (c *Cache) DirtyMissing(ctx context.Context, limit int) (int64, error) {
	last, err := c.lastCachedID(ctx)
	if err != nil {
		return 0, err
	}
	lastPost, err := c.store.LastPostID(ctx)
	if err != nil {
		return 0, err
	}
	gap := lastPost - last
	if gap <= 0 {
		return 0, nil
	}
	missing, err := c.store.UncachedPosts(ctx, last, limit)
	if err != nil {
		return 0, err
	}
	for _, p := range missing {
		if p.Promoted.IsPositive() {
			c.promoted[p.ID] = p.Promoted
		}
		c.dirty(LevelInsert, p.Author, p.Permlink, p.ID)
	}
	return gap, nil
}

// RecoverMissingPosts fills the cache for every post above the cursor,
// stopping when a pass makes no progress.
func (c *Cache) RecoverMissingPosts(ctx context.Context) error {
	gap, err := c.DirtyMissing(ctx, missingBatch)
	if err != nil {
		return err
	}
	c.logger.Info("[INIT] missing post cache entries", zap.Int64("gap", gap))
	for {
		counts, err := c.Flush(ctx, true)
		if err != nil {
			return err
		}
		if counts.Insert == 0 {
			return nil
		}
		lastGap := gap
		if gap, err = c.DirtyMissing(ctx, missingBatch); err != nil {
			return err
		}
		if gap == lastGap {
			c.logger.Warn("[INIT] missing post recovery stalled", zap.Int64("gap", gap))
			return nil
		}
	}
}

func (c *Cache) lastCachedID(ctx context.Context) (int64, error) {
	if c.lastIDLoaded {
		return c.lastID, nil
	}
	id, err := c.store.LastCachedPostID(ctx)
	if err != nil {
		return 0, fmt.Errorf("last cached post id: %w", err)
	}
	c.lastID, c.lastIDLoaded = id, true
	return id, nil
}

// bumpLastID moves the cache cursor. Only inserts may pass it, and never
// over a live post that was not cached.
func (c *Cache) bumpLastID(ctx context.Context, postID int64, level Level) error {
	last, err := c.lastCachedID(ctx)
	if err != nil {
		return err
	}
	if postID <= last {
		return nil
	}
	if level != LevelInsert {
		return fmt.Errorf("post %d above cache cursor %d queued as %s", postID, last, level)
	}
	if postID-last > 1 {
		n, err := c.store.LivePostCount(ctx, last+1, postID-1)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("cache cursor %d -> %d skips %d uncached posts", last, postID, n)
		}
	}
	c.lastID = postID
	return nil
}

func (c *Cache) loadNoids(ctx context.Context) error {
	for url := range c.noids {
		if _, ok := c.ids[url]; ok {
			delete(c.noids, url)
			continue
		}
		author, permlink, _ := strings.Cut(url, "/")
		id, ok, err := c.store.PostID(ctx, author, permlink)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("queued post %s has no id", url)
		}
		c.ids[url] = id
		delete(c.noids, url)
	}
	return nil
}

type pendingPost struct {
	url   string
	id    int64
	level Level
	votes []string
}

// Flush refreshes every queued post from the chain. With trx set each
// batch is written in its own transaction.
func (c *Cache) Flush(ctx context.Context, trx bool) (Counts, error) {
	var counts Counts
	if err := c.loadNoids(ctx); err != nil {
		return counts, err
	}
	urls := c.queue.ShiftAll()
	if len(urls) == 0 {
		return counts, nil
	}

	batch := make([]pendingPost, 0, len(urls))
	for _, url := range urls {
		p := pendingPost{url: url, id: c.ids[url], level: c.levels[url], votes: c.votes[url]}
		delete(c.levels, url)
		delete(c.votes, url)
		batch = append(batch, p)
		counts.add(p.level)
	}

	start := time.Now()
	if trx || len(urls) > 250 {
		c.logger.Info("[PREP] posts cache process",
			zap.Int("insert", counts.Insert),
			zap.Int("payout", counts.Payout),
			zap.Int("update", counts.Update),
			zap.Int("upvote", counts.Upvote),
			zap.Int("recount", counts.Recount),
		)
	}

	err := c.updateBatch(ctx, batch, trx)
	if err != nil {
		for _, p := range batch {
			author, permlink, _ := strings.Cut(p.url, "/")
			c.dirty(p.level, author, permlink, p.id)
			url := p.url
			c.votes[url] = append(c.votes[url], p.votes...)
		}
		return Counts{}, err
	}
	for _, p := range batch {
		if !c.queue.Contains(p.url) {
			delete(c.ids, p.url)
		}
	}
	if trx || len(urls) > 250 {
		c.logger.Info("[PREP] posts cache flushed", zap.Int("posts", len(urls)), zap.Duration("duration", time.Since(start)))
	}
	return counts, nil
}

func (c *Cache) updateBatch(ctx context.Context, batch []pendingPost, trx bool) error {
	sort.Slice(batch, func(i, j int) bool { return batch[i].id < batch[j].id })

	for _, chunk := range utils.Chunk(batch, flushBatch) {
		keys := make([]rpc.PostKey, len(chunk))
		ids := make([]int64, len(chunk))
		for i, p := range chunk {
			author, permlink, _ := strings.Cut(p.url, "/")
			keys[i] = rpc.PostKey{Author: author, Permlink: permlink}
			ids[i] = p.id
		}
		contents, err := c.chain.GetContentBatch(ctx, keys)
		if err != nil {
			return fmt.Errorf("fetch posts: %w", err)
		}
		if len(contents) != len(chunk) {
			return fmt.Errorf("fetch posts: asked %d, got %d", len(chunk), len(contents))
		}
		cores, err := c.store.PostsByIDs(ctx, ids)
		if err != nil {
			return err
		}

		var (
			rows []*models.CachedPost
			done []flushedPost
		)
		for i, p := range chunk {
			if err := c.bumpLastID(ctx, p.id, p.level); err != nil {
				return err
			}
			content := contents[i]
			core, ok := cores[p.id]
			if !content.Exists() || !ok {
				if ok && core.IsDeleted {
					c.logger.Debug("skipping deleted post", zap.String("url", p.url))
				} else {
					c.logger.Warn("post missing on chain", zap.String("url", p.url), zap.Int64("id", p.id), zap.Stringer("level", p.level))
				}
				continue
			}

			var promoted *decimal.Decimal
			if amt, ok := c.promoted[p.id]; ok {
				promoted = &amt
				delete(c.promoted, p.id)
			}
			row, err := buildRow(p.id, content, core, promoted, c.mutes)
			if err != nil {
				return fmt.Errorf("post %s: %w", p.url, err)
			}
			rows = append(rows, row)
			done = append(done, flushedPost{post: p, content: content, row: row})

			if p.level == LevelRecount && content.Depth > 0 {
				c.Recount(content.ParentAuthor, content.ParentPermlink, 0)
			}
		}

		write := func(ctx context.Context) error {
			if len(rows) > 0 {
				if err := c.store.UpsertCachedPosts(ctx, rows); err != nil {
					return fmt.Errorf("upsert cached posts: %w", err)
				}
			}
			if c.phase.IsInitialSync() {
				return nil
			}
			for _, f := range done {
				if err := c.notifications(ctx, f); err != nil {
					return err
				}
			}
			return nil
		}
		if trx {
			err = c.store.InTx(ctx, write)
		} else {
			err = write(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type flushedPost struct {
	post    pendingPost
	content *rpc.Content
	row     *models.CachedPost
}
