package social

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/db/postgres"
)

const postCoreColumns = `id, parent_id, author, permlink, category, community_id, depth, created_at, is_deleted, promoted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.ParentID, &p.Author, &p.Permlink, &p.Category,
		&p.CommunityID, &p.Depth, &p.CreatedAt, &p.IsDeleted, &p.Promoted)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PostID resolves author/permlink to a post id.
func (db *DB) PostID(ctx context.Context, author, permlink string) (int64, bool, error) {
	var id int64
	err := db.QueryRow(ctx, `SELECT id FROM worth_posts WHERE author = $1 AND permlink = $2`, author, permlink).Scan(&id)
	if postgres.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("post id %s/%s: %w", author, permlink, err)
	}
	return id, true, nil
}

// PostCore loads the primary row of a post.
func (db *DB) PostCore(ctx context.Context, author, permlink string) (*models.Post, bool, error) {
	p, err := scanPost(db.QueryRow(ctx,
		`SELECT `+postCoreColumns+` FROM worth_posts WHERE author = $1 AND permlink = $2`, author, permlink))
	if postgres.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("post core %s/%s: %w", author, permlink, err)
	}
	return p, true, nil
}

// PostsByIDs loads primary rows by id.
func (db *DB) PostsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Post, error) {
	out := make(map[int64]*models.Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.Query(ctx, `SELECT `+postCoreColumns+` FROM worth_posts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("posts by ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// InsertPost inserts a new primary post and returns its id.
func (db *DB) InsertPost(ctx context.Context, p *models.Post) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO worth_posts (parent_id, author, permlink, category, community_id, depth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.ParentID, p.Author, p.Permlink, p.Category, p.CommunityID, p.Depth, p.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert post %s/%s: %w", p.Author, p.Permlink, err)
	}
	return id, nil
}

// SetPostDeleted flips the soft-delete flag.
func (db *DB) SetPostDeleted(ctx context.Context, id int64, deleted bool) error {
	return db.Exec(ctx, `UPDATE worth_posts SET is_deleted = $2 WHERE id = $1`, id, deleted)
}

// LastPostID returns the highest post id, 0 when empty.
func (db *DB) LastPostID(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COALESCE(MAX(id), 0) FROM worth_posts`)
}

// PostPromoted reads the promoted balance of a post.
func (db *DB) PostPromoted(ctx context.Context, id int64) (decimal.Decimal, error) {
	var amt decimal.Decimal
	if err := db.QueryRow(ctx, `SELECT promoted FROM worth_posts WHERE id = $1`, id).Scan(&amt); err != nil {
		return decimal.Zero, fmt.Errorf("post %d promoted: %w", id, err)
	}
	return amt, nil
}

// SetPostPromoted overwrites the promoted balance of a post.
func (db *DB) SetPostPromoted(ctx context.Context, id int64, amount decimal.Decimal) error {
	return db.Exec(ctx, `UPDATE worth_posts SET promoted = $2 WHERE id = $1`, id, amount)
}

// UncachedPosts lists live posts with id > afterID, ascending, up to limit.
func (db *DB) UncachedPosts(ctx context.Context, afterID int64, limit int) ([]models.UncachedPost, error) {
	rows, err := db.Query(ctx, `
		SELECT id, author, permlink, promoted FROM worth_posts
		WHERE is_deleted = false AND id > $1
		ORDER BY id LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("uncached posts: %w", err)
	}
	defer rows.Close()

	var out []models.UncachedPost
	for rows.Next() {
		var p models.UncachedPost
		if err := rows.Scan(&p.ID, &p.Author, &p.Permlink, &p.Promoted); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) queryRefs(ctx context.Context, query string, args ...any) ([]models.PostRef, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PostRef
	for rows.Next() {
		var r models.PostRef
		if err := rows.Scan(&r.ID, &r.Author, &r.Permlink); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UndeletePost revives a soft-deleted post slot for a new post with the same url.
func (db *DB) UndeletePost(ctx context.Context, p *models.Post) error {
	return db.Exec(ctx, `
		UPDATE worth_posts SET
			is_deleted = false, parent_id = $2, category = $3, community_id = $4, depth = $5, created_at = $6
		WHERE id = $1
	`, p.ID, p.ParentID, p.Category, p.CommunityID, p.Depth, p.CreatedAt)
}

// LivePostCount counts non-deleted posts with id in [lbound, ubound].
func (db *DB) LivePostCount(ctx context.Context, lbound, ubound int64) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM worth_posts WHERE id BETWEEN $1 AND $2 AND is_deleted = false`, lbound, ubound)
}
