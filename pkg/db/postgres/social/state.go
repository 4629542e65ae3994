package social

import (
	"context"
	"fmt"

	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// InitialSyncFlag reads the persisted initial-sync flag.
func (db *DB) InitialSyncFlag(ctx context.Context) (bool, error) {
	var initial bool
	if err := db.QueryRow(ctx, `SELECT initial_sync FROM worth_state WHERE id = 1`).Scan(&initial); err != nil {
		return false, fmt.Errorf("read initial sync flag: %w", err)
	}
	return initial, nil
}

// SetInitialSyncDone clears the initial-sync flag. There is no way back.
func (db *DB) SetInitialSyncDone(ctx context.Context) error {
	return db.Exec(ctx, `UPDATE worth_state SET initial_sync = false WHERE id = 1`)
}

// UpdateChainState overwrites the chain-properties row.
func (db *DB) UpdateChainState(ctx context.Context, s *models.ChainState) error {
	return db.Exec(ctx, `
		UPDATE worth_state SET
			block_num = $1, worth_per_mvest = $2, usd_per_worth = $3, wbd_per_worth = $4, dgpo = $5
		WHERE id = 1
	`, s.BlockNum, s.WorthPerMVest, s.UsdPerWorth, s.WbdPerWorth, string(s.DGPO))
}

// ChainState reads the chain-properties row.
func (db *DB) ChainState(ctx context.Context) (*models.ChainState, error) {
	var (
		s    models.ChainState
		dgpo string
	)
	err := db.QueryRow(ctx, `
		SELECT block_num, worth_per_mvest, usd_per_worth, wbd_per_worth, dgpo FROM worth_state WHERE id = 1
	`).Scan(&s.BlockNum, &s.WorthPerMVest, &s.UsdPerWorth, &s.WbdPerWorth, &dgpo)
	if err != nil {
		return nil, fmt.Errorf("read chain state: %w", err)
	}
	s.DGPO = []byte(dgpo)
	return &s, nil
}

// Status gathers the counters shown by the status mode.
func (db *DB) Status(ctx context.Context) (*models.SyncStatus, error) {
	st := &models.SyncStatus{}
	initial, err := db.InitialSyncFlag(ctx)
	if err != nil {
		return nil, err
	}
	st.InitialSync = initial

	head, ok, err := db.HeadBlock(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		st.HeadBlock = head.Num
		st.HeadDate = head.CreatedAt
	}

	chain, err := db.ChainState(ctx)
	if err != nil {
		return nil, err
	}
	st.ChainStateNum = chain.BlockNum

	counts := []struct {
		query string
		out   *int64
	}{
		{`SELECT COUNT(*) FROM worth_accounts`, &st.Accounts},
		{`SELECT COUNT(*) FROM worth_posts`, &st.Posts},
		{`SELECT COUNT(*) FROM worth_posts_cache`, &st.CachedPosts},
		{`SELECT COUNT(*) FROM worth_feed_cache`, &st.FeedRows},
		{`SELECT COUNT(*) FROM worth_payments`, &st.Payments},
	}
	for _, c := range counts {
		n, err := db.count(ctx, c.query)
		if err != nil {
			return nil, fmt.Errorf("status count: %w", err)
		}
		*c.out = n
	}
	return st, nil
}
