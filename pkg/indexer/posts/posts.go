// Package posts owns the primary posts table and the denormalized posts cache.
package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/normalize"
	"github.com/worth-network/worthx/pkg/rpc"
)

// ErrParentMissing means a reply references a post that was never indexed.
var ErrParentMissing = errors.New("parent post not found")

type Store interface {
	PostCore(ctx context.Context, author, permlink string) (*models.Post, bool, error)
	PostsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Post, error)
	InsertPost(ctx context.Context, p *models.Post) (int64, error)
	UndeletePost(ctx context.Context, p *models.Post) error
	SetPostDeleted(ctx context.Context, id int64, deleted bool) error
}

// FeedWriter is the incremental side of the feed cache.
type FeedWriter interface {
	Insert(ctx context.Context, postID, accountID int64, createdAt time.Time) error
	Delete(ctx context.Context, postID int64, accountID *int64) (int64, error)
}

// Communities maps a root post category to its community.
type Communities interface {
	CommunityID(name string) *int64
}

type Accounts interface {
	GetID(name string) (int64, error)
}

type Phase interface {
	IsInitialSync() bool
}

// Posts applies comment and delete_comment ops to the primary table and
// marks the cache accordingly.
type Posts struct {
	logger      *zap.Logger
	store       Store
	cache       *Cache
	feed        FeedWriter
	accounts    Accounts
	communities Communities
	phase       Phase
}

func New(logger *zap.Logger, store Store, cache *Cache, feed FeedWriter, accounts Accounts, communities Communities, phase Phase) *Posts {
	return &Posts{
		logger:      logger,
		store:       store,
		cache:       cache,
		feed:        feed,
		accounts:    accounts,
		communities: communities,
		phase:       phase,
	}
}

// GetIDAndDepth resolves a post url; ok is false when the post was never indexed.
func (p *Posts) GetIDAndDepth(ctx context.Context, author, permlink string) (int64, int, bool, error) {
	core, ok, err := p.store.PostCore(ctx, author, permlink)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	return core.ID, core.Depth, true, nil
}

// CommentOp registers a new post, re-inserts a deleted one, or marks an edit.
func (p *Posts) CommentOp(ctx context.Context, op *rpc.CommentOp, date time.Time) error {
	core, found, err := p.store.PostCore(ctx, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	switch {
	case !found:
		return p.insert(ctx, op, date)
	case core.IsDeleted:
		return p.undelete(ctx, core.ID, op.Author, op.Permlink, op.ParentAuthor, op.ParentPermlink, date)
	default:
		if !p.phase.IsInitialSync() {
			p.cache.Update(op.Author, op.Permlink, core.ID)
		}
		return nil
	}
}

// Undelete restores a post wrongly marked deleted, using its chain snapshot.
func (p *Posts) Undelete(ctx context.Context, id int64, c *rpc.Content) error {
	created, err := normalize.ParseTime(c.Created)
	if err != nil {
		return fmt.Errorf("undelete %s/%s: %w", c.Author, c.Permlink, err)
	}
	return p.undelete(ctx, id, c.Author, c.Permlink, c.ParentAuthor, c.ParentPermlink, created)
}

// DeleteOp soft-deletes a post. Unknown posts are ignored.
func (p *Posts) DeleteOp(ctx context.Context, op *rpc.DeleteCommentOp) error {
	core, found, err := p.store.PostCore(ctx, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if !found || core.IsDeleted {
		p.logger.Debug("delete of unknown post", zap.String("author", op.Author), zap.String("permlink", op.Permlink))
		return nil
	}
	if err := p.store.SetPostDeleted(ctx, core.ID, true); err != nil {
		return fmt.Errorf("delete post %d: %w", core.ID, err)
	}
	if p.phase.IsInitialSync() {
		return nil
	}

	if err := p.cache.Delete(ctx, core.ID, op.Author, op.Permlink); err != nil {
		return err
	}
	if core.Depth == 0 {
		_, err := p.feed.Delete(ctx, core.ID, nil)
		return err
	}
	// parent child count changes
	if core.ParentID != nil {
		parents, err := p.store.PostsByIDs(ctx, []int64{*core.ParentID})
		if err != nil {
			return err
		}
		if parent, ok := parents[*core.ParentID]; ok {
			p.cache.Recount(parent.Author, parent.Permlink, parent.ID)
		}
	}
	return nil
}

func (p *Posts) insert(ctx context.Context, op *rpc.CommentOp, date time.Time) error {
	post, parent, err := p.build(ctx, op.Author, op.Permlink, op.ParentAuthor, op.ParentPermlink, date)
	if err != nil {
		return err
	}
	id, err := p.store.InsertPost(ctx, post)
	if err != nil {
		return fmt.Errorf("insert post %s/%s: %w", op.Author, op.Permlink, err)
	}
	post.ID = id
	if p.phase.IsInitialSync() {
		return nil
	}
	p.cache.Insert(post.Author, post.Permlink, post.ID)
	return p.link(ctx, post, parent)
}

func (p *Posts) undelete(ctx context.Context, id int64, author, permlink, parentAuthor, parentPermlink string, date time.Time) error {
	post, parent, err := p.build(ctx, author, permlink, parentAuthor, parentPermlink, date)
	if err != nil {
		return err
	}
	post.ID = id
	if err := p.store.UndeletePost(ctx, post); err != nil {
		return fmt.Errorf("undelete post %d: %w", id, err)
	}
	if p.phase.IsInitialSync() {
		return nil
	}
	if err := p.cache.Undelete(ctx, id, author, permlink, post.Category); err != nil {
		return err
	}
	return p.link(ctx, post, parent)
}

// build derives depth, category and community from the parent.
func (p *Posts) build(ctx context.Context, author, permlink, parentAuthor, parentPermlink string, date time.Time) (*models.Post, *models.Post, error) {
	post := &models.Post{
		Author:    author,
		Permlink:  permlink,
		CreatedAt: date,
	}
	if parentAuthor == "" {
		post.Category = parentPermlink
		post.CommunityID = p.communities.CommunityID(parentPermlink)
		return post, nil, nil
	}

	parent, found, err := p.store.PostCore(ctx, parentAuthor, parentPermlink)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: %s/%s replying to %s/%s", ErrParentMissing, author, permlink, parentAuthor, parentPermlink)
	}
	post.ParentID = &parent.ID
	post.Depth = parent.Depth + 1
	post.Category = parent.Category
	post.CommunityID = parent.CommunityID
	return post, parent, nil
}

// link recounts the parent of a reply or puts a root post on its author's blog.
func (p *Posts) link(ctx context.Context, post, parent *models.Post) error {
	if parent != nil {
		p.cache.Recount(parent.Author, parent.Permlink, parent.ID)
		return nil
	}
	authorID, err := p.accounts.GetID(post.Author)
	if err != nil {
		return err
	}
	return p.feed.Insert(ctx, post.ID, authorID, post.CreatedAt)
}
