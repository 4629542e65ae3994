// Package social is the Postgres store for accounts, posts, feeds, payments and sync state.
package social

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/worth-network/worthx/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB is the indexer's relational store. Every method runs on the
// transaction bound to ctx when there is one (see postgres.Client.InTx).
type DB struct {
	postgres.Client
}

// New connects to dbURL and creates missing tables.
func New(ctx context.Context, logger *zap.Logger, dbURL string, poolConfig *postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(zap.String("component", poolConfig.Component)), dbURL, poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client}
	if err := db.InitializeDB(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitializeDB ensures the required tables exist.
// Tables carry no foreign keys, so they are created in parallel.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"worth_accounts", db.initAccounts},
		{"worth_posts", db.initPosts},
		{"worth_posts_cache", db.initPostsCache},
		{"worth_feed_cache", db.initFeedCache},
		{"worth_reblogs", db.initReblogs},
		{"worth_follows", db.initFollows},
		{"worth_payments", db.initPayments},
		{"worth_blocks", db.initBlocks},
		{"worth_state", db.initState},
		{"worth_communities", db.initCommunities},
		{"worth_notifs", db.initNotifs},
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(initOps))

	for _, op := range initOps {
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			db.Logger.Debug("Initializing table", zap.String("table", name))
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("init %s: %w", name, err)
			}
		}(op.name, op.fn)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}

	db.Logger.Info("Database schema ready", zap.Duration("duration", time.Since(initStart)))
	return nil
}
