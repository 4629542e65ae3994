// Package feed maintains worth_feed_cache, the blog + reblog materialized view.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrInitialSync is returned by incremental writes while the bulk load runs;
// the view is rebuilt wholesale afterwards instead.
var ErrInitialSync = errors.New("feed cache is not maintained during initial sync")

type Store interface {
	InsertFeedEntry(ctx context.Context, postID, accountID int64, createdAt time.Time) error
	DeleteFeedEntries(ctx context.Context, postID int64) (int64, error)
	DeleteFeedEntry(ctx context.Context, postID, accountID int64) (int64, error)
	TruncateFeed(ctx context.Context) error
	FeedFromPosts(ctx context.Context) (int64, error)
	FeedFromReblogs(ctx context.Context) (int64, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Phase reports the sync phase.
type Phase interface {
	IsInitialSync() bool
}

type Cache struct {
	logger *zap.Logger
	store  Store
	phase  Phase
}

func New(logger *zap.Logger, store Store, phase Phase) *Cache {
	return &Cache{logger: logger, store: store, phase: phase}
}

// Insert adds a post or reblog by an account to the feed.
func (c *Cache) Insert(ctx context.Context, postID, accountID int64, createdAt time.Time) error {
	if c.phase.IsInitialSync() {
		return ErrInitialSync
	}
	if err := c.store.InsertFeedEntry(ctx, postID, accountID, createdAt); err != nil {
		return fmt.Errorf("feed insert post %d account %d: %w", postID, accountID, err)
	}
	return nil
}

// Delete removes a post from the feed. With a nil accountID every entry of
// the post goes (post deleted); otherwise only that account's (un-reblog).
func (c *Cache) Delete(ctx context.Context, postID int64, accountID *int64) (int64, error) {
	if c.phase.IsInitialSync() {
		return 0, ErrInitialSync
	}
	var (
		n   int64
		err error
	)
	if accountID == nil {
		n, err = c.store.DeleteFeedEntries(ctx, postID)
	} else {
		n, err = c.store.DeleteFeedEntry(ctx, postID, *accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("feed delete post %d: %w", postID, err)
	}
	return n, nil
}

// Rebuild regenerates the feed from the primary tables in one transaction.
// Both passes ignore existing rows, so a partial prior state never yields duplicates.
func (c *Cache) Rebuild(ctx context.Context, truncate bool) error {
	c.logger.Info("[INIT] rebuilding feed cache")
	var posts, reblogs int64
	var lap0, lap1, lap2 time.Time

	err := c.store.InTx(ctx, func(ctx context.Context) error {
		if truncate {
			if err := c.store.TruncateFeed(ctx); err != nil {
				return fmt.Errorf("truncate feed: %w", err)
			}
		}
		lap0 = time.Now()
		var err error
		if posts, err = c.store.FeedFromPosts(ctx); err != nil {
			return err
		}
		lap1 = time.Now()
		if reblogs, err = c.store.FeedFromReblogs(ctx); err != nil {
			return err
		}
		lap2 = time.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild feed cache: %w", err)
	}

	c.logger.Info("[INIT] rebuilt feed cache",
		zap.Int64("posts", posts),
		zap.Int64("reblogs", reblogs),
		zap.Duration("posts_pass", lap1.Sub(lap0)),
		zap.Duration("reblogs_pass", lap2.Sub(lap1)),
		zap.Duration("total", lap2.Sub(lap0)),
	)
	return nil
}
