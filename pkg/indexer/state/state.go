// Package state tracks the persisted sync phase and chain-properties snapshot.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/rpc"
)

var ErrNotInitialized = errors.New("sync state not initialized")

type Store interface {
	InitialSyncFlag(ctx context.Context) (bool, error)
	SetInitialSyncDone(ctx context.Context) error
	UpdateChainState(ctx context.Context, s *models.ChainState) error
	Status(ctx context.Context) (*models.SyncStatus, error)
}

// Chain provides the extended global properties.
type Chain interface {
	GDGPExtended(ctx context.Context) (*rpc.ChainProperties, error)
}

// DbState is the process view of the persisted sync phase. Once initial sync
// is finished it never goes back.
type DbState struct {
	logger *zap.Logger
	store  Store

	ready   atomic.Bool
	initial atomic.Bool
}

func New(logger *zap.Logger, store Store) *DbState {
	return &DbState{logger: logger, store: store}
}

// Initialize reads the persisted phase.
func (s *DbState) Initialize(ctx context.Context) error {
	initial, err := s.store.InitialSyncFlag(ctx)
	if err != nil {
		return err
	}
	s.initial.Store(initial)
	s.ready.Store(true)
	s.logger.Info("[INIT] sync state loaded", zap.Bool("initial_sync", initial))
	return nil
}

// IsInitialSync reports whether the bulk load is still in progress.
func (s *DbState) IsInitialSync() bool {
	return s.initial.Load()
}

// FinishInitialSync persists the end of the bulk load.
func (s *DbState) FinishInitialSync(ctx context.Context) error {
	if !s.ready.Load() {
		return ErrNotInitialized
	}
	if !s.initial.Load() {
		return nil
	}
	if err := s.store.SetInitialSyncDone(ctx); err != nil {
		return fmt.Errorf("finish initial sync: %w", err)
	}
	s.initial.Store(false)
	s.logger.Info("[INIT] initial sync complete")
	return nil
}

// UpdateChainState snapshots the chain properties into the state row.
func (s *DbState) UpdateChainState(ctx context.Context, chain Chain) (uint64, error) {
	props, err := chain.GDGPExtended(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch chain properties: %w", err)
	}
	row := &models.ChainState{
		BlockNum:      props.Head,
		WorthPerMVest: props.WorthPerMVest,
		UsdPerWorth:   props.UsdPerWorth,
		WbdPerWorth:   props.WbdPerWorth,
		DGPO:          props.DGPO,
	}
	if err := s.store.UpdateChainState(ctx, row); err != nil {
		return 0, fmt.Errorf("store chain state: %w", err)
	}
	return props.Head, nil
}

// Status returns the persisted sync status.
func (s *DbState) Status(ctx context.Context) (*models.SyncStatus, error) {
	return s.store.Status(ctx)
}
