package social

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/db/postgres"
)

// FollowState returns the stored state of an edge; ok is false when there is no row.
func (db *DB) FollowState(ctx context.Context, follower, following int64) (int, bool, error) {
	var state int
	err := db.QueryRow(ctx, `SELECT state FROM worth_follows WHERE follower = $1 AND following = $2`, follower, following).Scan(&state)
	if postgres.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("follow state %d->%d: %w", follower, following, err)
	}
	return state, true, nil
}

// UpsertFollow inserts the edge or updates its state.
func (db *DB) UpsertFollow(ctx context.Context, f *models.Follow) error {
	return db.Exec(ctx, `
		INSERT INTO worth_follows (follower, following, state, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (following, follower) DO UPDATE SET state = EXCLUDED.state
	`, f.Follower, f.Following, f.State, f.CreatedAt)
}

// ApplyFollowCounts adds per-account deltas to the followers or following column.
func (db *DB) ApplyFollowCounts(ctx context.Context, column string, deltas map[int64]int) error {
	if column != "followers" && column != "following" {
		return fmt.Errorf("unknown follow count column %q", column)
	}
	if len(deltas) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	query := fmt.Sprintf(`UPDATE worth_accounts SET %[1]s = %[1]s + $1 WHERE id = $2`, column)
	batch := &pgx.Batch{}
	for _, id := range ids {
		if deltas[id] == 0 {
			continue
		}
		batch.Queue(query, deltas[id], id)
	}
	return db.SendBatch(ctx, batch)
}

// RecountFollows recomputes every follower/following counter from the edges.
func (db *DB) RecountFollows(ctx context.Context) error {
	return db.InTx(ctx, func(ctx context.Context) error {
		steps := []string{
			`UPDATE worth_accounts SET followers = 0, following = 0`,
			`UPDATE worth_accounts a SET followers = c.n
			 FROM (SELECT following AS id, COUNT(*) AS n FROM worth_follows WHERE state IN (1, 3) GROUP BY following) c
			 WHERE a.id = c.id`,
			`UPDATE worth_accounts a SET following = c.n
			 FROM (SELECT follower AS id, COUNT(*) AS n FROM worth_follows WHERE state IN (1, 3) GROUP BY follower) c
			 WHERE a.id = c.id`,
		}
		for _, q := range steps {
			if err := db.Exec(ctx, q); err != nil {
				return fmt.Errorf("recount follows: %w", err)
			}
		}
		return nil
	})
}

// IsIgnoring reports whether follower has muted following.
func (db *DB) IsIgnoring(ctx context.Context, follower, following int64) (bool, error) {
	var one int
	err := db.QueryRow(ctx, `
		SELECT 1 FROM worth_follows WHERE follower = $1 AND following = $2 AND state IN (2, 3)
	`, follower, following).Scan(&one)
	if postgres.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ignore state %d->%d: %w", follower, following, err)
	}
	return true, nil
}
