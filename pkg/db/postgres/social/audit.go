package social

import (
	"context"
	"fmt"

	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// MissingCachePosts lists live posts in [lbound, ubound] with no cache row.
func (db *DB) MissingCachePosts(ctx context.Context, lbound, ubound int64) ([]models.PostRef, error) {
	refs, err := db.queryRefs(ctx, `
		SELECT p.id, p.author, p.permlink
		FROM worth_posts p
		LEFT JOIN worth_posts_cache c ON p.id = c.post_id
		WHERE p.is_deleted = false AND c.post_id IS NULL AND p.id BETWEEN $1 AND $2
		ORDER BY p.id
	`, lbound, ubound)
	if err != nil {
		return nil, fmt.Errorf("missing cache posts [%d, %d]: %w", lbound, ubound, err)
	}
	return refs, nil
}

// DeletedCachedPosts lists deleted posts in [lbound, ubound] that still have a cache row.
func (db *DB) DeletedCachedPosts(ctx context.Context, lbound, ubound int64) ([]models.PostRef, error) {
	refs, err := db.queryRefs(ctx, `
		SELECT p.id, p.author, p.permlink
		FROM worth_posts p
		JOIN worth_posts_cache c ON p.id = c.post_id
		WHERE p.is_deleted = true AND p.id BETWEEN $1 AND $2
		ORDER BY p.id
	`, lbound, ubound)
	if err != nil {
		return nil, fmt.Errorf("deleted cached posts [%d, %d]: %w", lbound, ubound, err)
	}
	return refs, nil
}

// DeletedPosts lists posts in [lbound, ubound] marked deleted.
func (db *DB) DeletedPosts(ctx context.Context, lbound, ubound int64) ([]models.PostRef, error) {
	refs, err := db.queryRefs(ctx, `
		SELECT id, author, permlink FROM worth_posts
		WHERE is_deleted = true AND id BETWEEN $1 AND $2
		ORDER BY id
	`, lbound, ubound)
	if err != nil {
		return nil, fmt.Errorf("deleted posts [%d, %d]: %w", lbound, ubound, err)
	}
	return refs, nil
}
