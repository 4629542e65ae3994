package posts

import (
	"context"
	"errors"
	"sort"
	"time"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/rpc"
)

// memStore backs both Store and CacheStore with maps.
type memStore struct {
	posts    map[int64]*models.Post
	byURL    map[string]int64
	nextID   int64
	cache    map[int64]*models.CachedPost
	ignoring map[[2]int64]bool
	notifs   []notify.Notice
	txs      int
}

func newMemStore() *memStore {
	return &memStore{
		posts:    map[int64]*models.Post{},
		byURL:    map[string]int64{},
		cache:    map[int64]*models.CachedPost{},
		ignoring: map[[2]int64]bool{},
	}
}

func (s *memStore) PostID(_ context.Context, author, permlink string) (int64, bool, error) {
	id, ok := s.byURL[postURL(author, permlink)]
	return id, ok, nil
}

func (s *memStore) PostCore(_ context.Context, author, permlink string) (*models.Post, bool, error) {
	id, ok := s.byURL[postURL(author, permlink)]
	if !ok {
		return nil, false, nil
	}
	p := *s.posts[id]
	return &p, true, nil
}

func (s *memStore) PostsByIDs(_ context.Context, ids []int64) (map[int64]*models.Post, error) {
	out := map[int64]*models.Post{}
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *memStore) InsertPost(_ context.Context, p *models.Post) (int64, error) {
	url := postURL(p.Author, p.Permlink)
	if _, ok := s.byURL[url]; ok {
		return 0, errors.New("duplicate post")
	}
	s.nextID++
	cp := *p
	cp.ID = s.nextID
	s.posts[cp.ID] = &cp
	s.byURL[url] = cp.ID
	return cp.ID, nil
}

func (s *memStore) UndeletePost(_ context.Context, p *models.Post) error {
	row, ok := s.posts[p.ID]
	if !ok {
		return errors.New("no such post")
	}
	row.IsDeleted = false
	row.ParentID, row.Category, row.CommunityID, row.Depth, row.CreatedAt = p.ParentID, p.Category, p.CommunityID, p.Depth, p.CreatedAt
	return nil
}

func (s *memStore) SetPostDeleted(_ context.Context, id int64, deleted bool) error {
	s.posts[id].IsDeleted = deleted
	return nil
}

func (s *memStore) LastPostID(context.Context) (int64, error) { return s.nextID, nil }

func (s *memStore) LastCachedPostID(context.Context) (int64, error) {
	var last int64
	for id := range s.cache {
		last = max(last, id)
	}
	return last, nil
}

func (s *memStore) LivePostCount(_ context.Context, lbound, ubound int64) (int64, error) {
	var n int64
	for id, p := range s.posts {
		if id >= lbound && id <= ubound && !p.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UncachedPosts(_ context.Context, afterID int64, limit int) ([]models.UncachedPost, error) {
	var out []models.UncachedPost
	for id, p := range s.posts {
		if id > afterID && !p.IsDeleted {
			out = append(out, models.UncachedPost{
				PostRef:  models.PostRef{ID: id, Author: p.Author, Permlink: p.Permlink},
				Promoted: p.Promoted,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) PaidoutPosts(_ context.Context, date time.Time) ([]models.PostRef, error) {
	var out []models.PostRef
	for id, row := range s.cache {
		if !row.IsPaidout && !row.PayoutAt.After(date) {
			out = append(out, models.PostRef{ID: id, Author: row.Author, Permlink: row.Permlink})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) UpsertCachedPosts(_ context.Context, rows []*models.CachedPost) error {
	for _, r := range rows {
		cp := *r
		if cp.Promoted == nil {
			if old, ok := s.cache[r.PostID]; ok {
				cp.Promoted = old.Promoted
			}
		}
		s.cache[r.PostID] = &cp
	}
	return nil
}

func (s *memStore) DeleteCachedPost(_ context.Context, id int64) error {
	delete(s.cache, id)
	return nil
}

func (s *memStore) IsIgnoring(_ context.Context, follower, following int64) (bool, error) {
	return s.ignoring[[2]int64{follower, following}], nil
}

func (s *memStore) NotificationExists(_ context.Context, typeID int, src, dst, post int64) (bool, error) {
	for _, n := range s.notifs {
		if int(n.Type) == typeID && *n.SrcID == src && *n.DstID == dst && *n.PostID == post {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txs++
	return fn(ctx)
}

// Write makes memStore the notifier as well.
func (s *memStore) Write(_ context.Context, n notify.Notice) error {
	s.notifs = append(s.notifs, n)
	return nil
}

type fakeChain struct {
	posts map[string]*rpc.Content
	calls int
}

func (c *fakeChain) GetContentBatch(_ context.Context, keys []rpc.PostKey) ([]*rpc.Content, error) {
	c.calls++
	out := make([]*rpc.Content, len(keys))
	for i, k := range keys {
		if p, ok := c.posts[postURL(k.Author, k.Permlink)]; ok {
			out[i] = p
		} else {
			out[i] = &rpc.Content{}
		}
	}
	return out, nil
}

type fakeAccounts struct {
	ids   map[string]int64
	dirty []string
}

func (a *fakeAccounts) Exists(name string) bool { _, ok := a.ids[name]; return ok }

func (a *fakeAccounts) GetID(name string) (int64, error) {
	if id, ok := a.ids[name]; ok {
		return id, nil
	}
	return 0, errors.New("account not found: " + name)
}

func (a *fakeAccounts) DefaultScore(string) (int, error) { return 50, nil }

func (a *fakeAccounts) DirtySet(names []string) int {
	a.dirty = append(a.dirty, names...)
	return len(names)
}

type muteSet map[string]bool

func (m muteSet) IsMuted(name string) bool { return m[name] }

type phase struct{ initial bool }

func (p *phase) IsInitialSync() bool { return p.initial }

type feedEntry struct{ post, account int64 }

type fakeFeed struct {
	rows map[feedEntry]bool
}

func (f *fakeFeed) Insert(_ context.Context, postID, accountID int64, _ time.Time) error {
	f.rows[feedEntry{postID, accountID}] = true
	return nil
}

func (f *fakeFeed) Delete(_ context.Context, postID int64, accountID *int64) (int64, error) {
	var n int64
	for e := range f.rows {
		if e.post == postID && (accountID == nil || e.account == *accountID) {
			delete(f.rows, e)
			n++
		}
	}
	return n, nil
}

type communities map[string]int64

func (c communities) CommunityID(name string) *int64 {
	if id, ok := c[name]; ok {
		return &id
	}
	return nil
}

var (
	blockDate = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	wbd       = func(s string) []byte { return []byte(`"` + s + ` WBD"`) }
)

func content(author, permlink, parentAuthor, parentPermlink string, depth int) *rpc.Content {
	return &rpc.Content{
		Author:              author,
		Permlink:            permlink,
		ParentAuthor:        parentAuthor,
		ParentPermlink:      parentPermlink,
		Body:                "hello",
		JSONMetadata:        `{"tags":["life"]}`,
		Created:             "2020-06-01T12:00:00",
		LastUpdate:          "2020-06-01T12:00:00",
		CashoutTime:         "2020-06-08T12:00:00",
		LastPayout:          "1970-01-01T00:00:00",
		Depth:               depth,
		NetRshares:          "0",
		AuthorReputation:    "95866787474787",
		PendingPayoutValue:  wbd("0.000"),
		TotalPayoutValue:    wbd("0.000"),
		CuratorPayoutValue:  wbd("0.000"),
		MaxAcceptedPayout:   wbd("1000000.000"),
		PercentWorthDollars: 10000,
	}
}
