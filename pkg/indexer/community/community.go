// Package community registers community accounts and keeps the
// per-community pending payout rollup.
package community

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
)

// RoleOwner is granted to a community account on registration.
const RoleOwner = 8

var nameRe = regexp.MustCompile(`^worth-[123]\d{4,6}$`)

// IsCommunityName reports whether an account name registers a community.
func IsCommunityName(name string) bool {
	return nameRe.MatchString(name)
}

type Store interface {
	CommunityIDs(ctx context.Context) (map[string]int64, error)
	InsertCommunity(ctx context.Context, c *models.Community) (bool, error)
	InsertRole(ctx context.Context, accountID, communityID int64, roleID int, createdAt time.Time) error
	RecalcCommunityPayouts(ctx context.Context) (int64, error)
}

type Accounts interface {
	GetID(name string) (int64, error)
}

type Notifier interface {
	Write(ctx context.Context, n notify.Notice) error
}

type Registry struct {
	logger   *zap.Logger
	store    Store
	accounts Accounts
	notifier Notifier
	ids      *xsync.Map[string, int64]
}

func New(logger *zap.Logger, store Store, accounts Accounts, notifier Notifier) *Registry {
	return &Registry{
		logger:   logger,
		store:    store,
		accounts: accounts,
		notifier: notifier,
		ids:      xsync.NewMap[string, int64](),
	}
}

// Load reads registered communities into memory.
func (r *Registry) Load(ctx context.Context) error {
	ids, err := r.store.CommunityIDs(ctx)
	if err != nil {
		return err
	}
	for name, id := range ids {
		r.ids.Store(name, id)
	}
	r.logger.Debug("loaded communities", zap.Int("count", len(ids)))
	return nil
}

// Register turns newly created accounts with community names into communities.
func (r *Registry) Register(ctx context.Context, names []string, date time.Time) error {
	for _, name := range names {
		if !IsCommunityName(name) {
			continue
		}
		if _, ok := r.ids.Load(name); ok {
			continue
		}
		id, err := r.accounts.GetID(name)
		if err != nil {
			return err
		}
		inserted, err := r.store.InsertCommunity(ctx, &models.Community{
			ID:        id,
			Name:      name,
			TypeID:    int(name[6] - '0'),
			CreatedAt: date,
		})
		if err != nil {
			return fmt.Errorf("register community %s: %w", name, err)
		}
		r.ids.Store(name, id)
		if !inserted {
			continue
		}
		if err := r.store.InsertRole(ctx, id, id, RoleOwner, date); err != nil {
			return fmt.Errorf("community %s owner role: %w", name, err)
		}
		err = r.notifier.Write(ctx, notify.Notice{
			Type:        notify.NewCommunity,
			When:        date,
			DstID:       notify.ID(id),
			CommunityID: notify.ID(id),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CommunityID returns the id of the community named by a post category, or nil.
func (r *Registry) CommunityID(name string) *int64 {
	if !IsCommunityName(name) {
		return nil
	}
	if id, ok := r.ids.Load(name); ok {
		return &id
	}
	return nil
}

// RecalcPendingPayouts refreshes sum_pending, num_pending and rank.
func (r *Registry) RecalcPendingPayouts(ctx context.Context) error {
	start := time.Now()
	n, err := r.store.RecalcCommunityPayouts(ctx)
	if err != nil {
		return fmt.Errorf("recalc community payouts: %w", err)
	}
	r.logger.Debug("recalculated community payouts", zap.Int64("communities", n), zap.Duration("duration", time.Since(start)))
	return nil
}
