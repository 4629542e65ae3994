package social

import (
	"context"
	"fmt"
	"time"

	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// InsertCommunity registers a community; reports whether it was new.
func (db *DB) InsertCommunity(ctx context.Context, c *models.Community) (bool, error) {
	n, err := db.ExecCount(ctx, `
		INSERT INTO worth_communities (id, name, type_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.Name, c.TypeID, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert community %s: %w", c.Name, err)
	}
	return n > 0, nil
}

// InsertRole sets an account's role in a community.
func (db *DB) InsertRole(ctx context.Context, accountID, communityID int64, roleID int, createdAt time.Time) error {
	return db.Exec(ctx, `
		INSERT INTO worth_roles (account_id, community_id, role_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, community_id) DO UPDATE SET role_id = EXCLUDED.role_id
	`, accountID, communityID, roleID, createdAt)
}

// RecalcCommunityPayouts refreshes pending payout sums and ranks communities by them.
func (db *DB) RecalcCommunityPayouts(ctx context.Context) (int64, error) {
	var updated int64
	err := db.InTx(ctx, func(ctx context.Context) error {
		if err := db.Exec(ctx, `UPDATE worth_communities SET sum_pending = 0, num_pending = 0`); err != nil {
			return err
		}
		n, err := db.ExecCount(ctx, `
			UPDATE worth_communities c SET sum_pending = s.total, num_pending = s.posts
			FROM (
				SELECT community_id, SUM(payout) AS total, COUNT(*) AS posts
				FROM worth_posts_cache
				WHERE is_paidout = false AND community_id IS NOT NULL
				GROUP BY community_id
			) s
			WHERE c.id = s.community_id
		`)
		if err != nil {
			return err
		}
		updated = n
		return db.Exec(ctx, `
			UPDATE worth_communities c SET rank = r.rank
			FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY sum_pending DESC, id) AS rank FROM worth_communities) r
			WHERE c.id = r.id
		`)
	})
	if err != nil {
		return 0, fmt.Errorf("recalc community payouts: %w", err)
	}
	return updated, nil
}

// CommunityIDs returns every registered community by name.
func (db *DB) CommunityIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Query(ctx, `SELECT name, id FROM worth_communities`)
	if err != nil {
		return nil, fmt.Errorf("community ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}
