package social

import (
	"context"
	"fmt"
	"time"
)

// InsertFeedEntry adds a feed row; an existing row is left alone.
func (db *DB) InsertFeedEntry(ctx context.Context, postID, accountID int64, createdAt time.Time) error {
	return db.Exec(ctx, `
		INSERT INTO worth_feed_cache (account_id, post_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, post_id) DO NOTHING
	`, accountID, postID, createdAt)
}

// DeleteFeedEntries removes every feed row of a post.
func (db *DB) DeleteFeedEntries(ctx context.Context, postID int64) (int64, error) {
	return db.ExecCount(ctx, `DELETE FROM worth_feed_cache WHERE post_id = $1`, postID)
}

// DeleteFeedEntry removes one account's feed row of a post.
func (db *DB) DeleteFeedEntry(ctx context.Context, postID, accountID int64) (int64, error) {
	return db.ExecCount(ctx, `DELETE FROM worth_feed_cache WHERE post_id = $1 AND account_id = $2`, postID, accountID)
}

// TruncateFeed empties the feed cache.
func (db *DB) TruncateFeed(ctx context.Context) error {
	return db.Exec(ctx, `TRUNCATE TABLE worth_feed_cache`)
}

// FeedFromPosts derives feed rows from live root posts.
func (db *DB) FeedFromPosts(ctx context.Context) (int64, error) {
	n, err := db.ExecCount(ctx, `
		INSERT INTO worth_feed_cache (account_id, post_id, created_at)
		SELECT a.id, p.id, p.created_at
		FROM worth_posts p
		JOIN worth_accounts a ON p.author = a.name
		WHERE p.depth = 0 AND p.is_deleted = false
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("feed from posts: %w", err)
	}
	return n, nil
}

// FeedFromReblogs derives feed rows from reblogs of live posts.
func (db *DB) FeedFromReblogs(ctx context.Context) (int64, error) {
	n, err := db.ExecCount(ctx, `
		INSERT INTO worth_feed_cache (account_id, post_id, created_at)
		SELECT a.id, r.post_id, r.created_at
		FROM worth_reblogs r
		JOIN worth_accounts a ON r.account = a.name
		JOIN worth_posts p ON r.post_id = p.id
		WHERE p.is_deleted = false
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("feed from reblogs: %w", err)
	}
	return n, nil
}

// InsertReblog records a reblog once; reports whether a row was added.
func (db *DB) InsertReblog(ctx context.Context, account string, postID int64, createdAt time.Time) (bool, error) {
	n, err := db.ExecCount(ctx, `
		INSERT INTO worth_reblogs (account, post_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account, post_id) DO NOTHING
	`, account, postID, createdAt)
	return n > 0, err
}

// DeleteReblog removes a reblog; reports whether one existed.
func (db *DB) DeleteReblog(ctx context.Context, account string, postID int64) (bool, error) {
	n, err := db.ExecCount(ctx, `DELETE FROM worth_reblogs WHERE account = $1 AND post_id = $2`, account, postID)
	return n > 0, err
}
