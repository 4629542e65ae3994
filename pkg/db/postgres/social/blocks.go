package social

import (
	"context"
	"fmt"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/db/postgres"
)

const blockColumns = `num, hash, COALESCE(prev, ''), txs, ops, created_at`

func scanBlock(row rowScanner) (*models.Block, error) {
	var b models.Block
	if err := row.Scan(&b.Num, &b.Hash, &b.Prev, &b.Txs, &b.Ops, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// HeadBlock returns the highest applied block.
func (db *DB) HeadBlock(ctx context.Context) (*models.Block, bool, error) {
	b, err := scanBlock(db.QueryRow(ctx, `SELECT `+blockColumns+` FROM worth_blocks ORDER BY num DESC LIMIT 1`))
	if postgres.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("head block: %w", err)
	}
	return b, true, nil
}

// GetBlock returns an applied block by height.
func (db *DB) GetBlock(ctx context.Context, num uint64) (*models.Block, bool, error) {
	b, err := scanBlock(db.QueryRow(ctx, `SELECT `+blockColumns+` FROM worth_blocks WHERE num = $1`, num))
	if postgres.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("block %d: %w", num, err)
	}
	return b, true, nil
}

// InsertBlock appends a block to the ledger.
func (db *DB) InsertBlock(ctx context.Context, b *models.Block) error {
	err := db.Exec(ctx, `
		INSERT INTO worth_blocks (num, hash, prev, txs, ops, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`, b.Num, b.Hash, b.Prev, b.Txs, b.Ops, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Num, err)
	}
	return nil
}

// PopBlock undoes the rows written by a forked block: everything created at
// or after its timestamp, its payments (with promoted balances reverted),
// and the block row itself. Must run inside a transaction.
func (db *DB) PopBlock(ctx context.Context, b *models.Block) (*models.PopStats, error) {
	if !postgres.InTransaction(ctx) {
		return nil, fmt.Errorf("pop block %d: transaction required", b.Num)
	}
	stats := &models.PopStats{}
	steps := []struct {
		name  string
		query string
		args  []any
		out   *int64
	}{
		{"notifs", `DELETE FROM worth_notifs WHERE created_at >= $1`, []any{b.CreatedAt}, &stats.Notifs},
		{"feed", `DELETE FROM worth_feed_cache WHERE created_at >= $1`, []any{b.CreatedAt}, &stats.FeedRows},
		{"reblogs", `DELETE FROM worth_reblogs WHERE created_at >= $1`, []any{b.CreatedAt}, &stats.Reblogs},
		{"follows", `DELETE FROM worth_follows WHERE created_at >= $1`, []any{b.CreatedAt}, &stats.Follows},
		{"posts_cache", `DELETE FROM worth_posts_cache WHERE post_id IN (SELECT id FROM worth_posts WHERE created_at >= $1)`, []any{b.CreatedAt}, &stats.CachedPosts},
		{"posts", `DELETE FROM worth_posts WHERE created_at >= $1`, []any{b.CreatedAt}, &stats.Posts},
		{"promoted", `
			UPDATE worth_posts p SET promoted = p.promoted - s.amount
			FROM (SELECT post_id, SUM(amount) AS amount FROM worth_payments WHERE block_num = $1 GROUP BY post_id) s
			WHERE p.id = s.post_id`, []any{b.Num}, nil},
		{"promoted_cache", `
			UPDATE worth_posts_cache c SET promoted = c.promoted - s.amount
			FROM (SELECT post_id, SUM(amount) AS amount FROM worth_payments WHERE block_num = $1 GROUP BY post_id) s
			WHERE c.post_id = s.post_id`, []any{b.Num}, nil},
		{"payments", `DELETE FROM worth_payments WHERE block_num = $1`, []any{b.Num}, &stats.Payments},
		{"block", `DELETE FROM worth_blocks WHERE num = $1`, []any{b.Num}, nil},
	}
	for _, s := range steps {
		n, err := db.ExecCount(ctx, s.query, s.args...)
		if err != nil {
			return nil, fmt.Errorf("pop block %d %s: %w", b.Num, s.name, err)
		}
		if s.out != nil {
			*s.out = n
		}
	}
	return stats, nil
}
