// Package accounts owns the account name->id map, the rank table and the
// dirty-queue driven refresh of cached account columns.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/normalize"
	"github.com/worth-network/worthx/pkg/queue"
	"github.com/worth-network/worthx/pkg/rpc"
	"github.com/worth-network/worthx/pkg/utils"
)

// ProxiedVSFScale converts proxied_vsf_votes entries into vests.
const ProxiedVSFScale = 1e6

const (
	fetchBatch   = 1000
	fetchWorkers = 4
	unrankedRank = 1000000
)

var (
	ErrIDsLoaded       = errors.New("account id map already loaded")
	ErrAccountNotFound = errors.New("account does not exist or was not registered")
)

// Store is the persistence used by the materializer.
type Store interface {
	AccountIDs(ctx context.Context) (map[string]int64, error)
	InsertAccounts(ctx context.Context, names []string, createdAt time.Time) (map[string]int64, error)
	AccountNames(ctx context.Context) ([]string, error)
	OldestCachedAccounts(ctx context.Context, limit int) ([]string, error)
	RankedAccountIDs(ctx context.Context) ([]int64, error)
	UpdateAccountCaches(ctx context.Context, accounts []*models.AccountCache) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Chain fetches full account snapshots.
type Chain interface {
	GetAccounts(ctx context.Context, names []string) ([]*rpc.Account, error)
}

// Registrar is told about newly registered names.
type Registrar interface {
	Register(ctx context.Context, names []string, date time.Time) error
}

// Materializer is single-writer: only the sync loop mutates it. The maps
// are concurrent so the status server can read them.
type Materializer struct {
	logger *zap.Logger
	store  Store
	chain  Chain

	registrar      Registrar
	communityStart time.Time

	ids    *xsync.Map[string, int64]
	ranks  atomic.Pointer[xsync.Map[int64, int]]
	loaded bool
	dirty  *queue.UniqueFIFO[string]

	now func() time.Time
}

func New(logger *zap.Logger, store Store, chain Chain) *Materializer {
	m := &Materializer{
		logger: logger,
		store:  store,
		chain:  chain,
		ids:    xsync.NewMap[string, int64](),
		dirty:  queue.New[string](),
		now:    time.Now,
	}
	m.ranks.Store(xsync.NewMap[int64, int]())
	return m
}

// SetRegistrar wires the community subsystem; names registered after start are passed to it.
func (m *Materializer) SetRegistrar(r Registrar, start time.Time) {
	m.registrar = r
	m.communityStart = start
}

// LoadIDs reads the full name->id map. It may only run once per process.
func (m *Materializer) LoadIDs(ctx context.Context) error {
	if m.loaded || m.ids.Size() > 0 {
		return ErrIDsLoaded
	}
	ids, err := m.store.AccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("load account ids: %w", err)
	}
	for name, id := range ids {
		m.ids.Store(name, id)
	}
	m.loaded = true
	return nil
}

// Exists reports whether name is registered.
func (m *Materializer) Exists(name string) bool {
	_, ok := m.ids.Load(name)
	return ok
}

// GetID returns the id of a registered name.
func (m *Materializer) GetID(name string) (int64, error) {
	id, ok := m.ids.Load(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrAccountNotFound, name)
	}
	return id, nil
}

// Count returns the number of known accounts.
func (m *Materializer) Count() int {
	return m.ids.Size()
}

// Register inserts rows for names not seen before and merges the assigned ids.
func (m *Materializer) Register(ctx context.Context, names []string, date time.Time) error {
	var fresh []string
	for _, name := range utils.UniqueStrings(names) {
		if name != "" && !m.Exists(name) {
			fresh = append(fresh, name)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	ids, err := m.store.InsertAccounts(ctx, fresh, date)
	if err != nil {
		return fmt.Errorf("register accounts: %w", err)
	}
	for _, name := range fresh {
		id, ok := ids[name]
		if !ok {
			return fmt.Errorf("register %q: no id assigned", name)
		}
		m.ids.Store(name, id)
	}

	if m.registrar != nil && date.After(m.communityStart) {
		if err := m.registrar.Register(ctx, fresh, date); err != nil {
			return err
		}
	}
	return nil
}

// ScoreForRank maps an account rank to its default notification score.
func ScoreForRank(rank int) int {
	switch {
	case rank < 200:
		return 70
	case rank < 1000:
		return 60
	case rank < 6500:
		return 50
	case rank < 25000:
		return 40
	case rank < 100000:
		return 30
	default:
		return 20
	}
}

// DefaultScore is the notification score of a registered account; unranked accounts score lowest.
func (m *Materializer) DefaultScore(name string) (int, error) {
	id, err := m.GetID(name)
	if err != nil {
		return 0, err
	}
	rank, ok := m.ranks.Load().Load(id)
	if !ok {
		rank = unrankedRank
	}
	return ScoreForRank(rank), nil
}

// FetchRanks rebuilds the rank table from vote_weight order. The new table
// replaces the old one only once complete.
func (m *Materializer) FetchRanks(ctx context.Context) error {
	ids, err := m.store.RankedAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch ranks: %w", err)
	}
	ranks := xsync.NewMap[int64, int](xsync.WithPresize(len(ids)))
	for i, id := range ids {
		ranks.Store(id, i+1)
	}
	m.ranks.Store(ranks)
	return nil
}

// Dirty marks one account for refresh.
func (m *Materializer) Dirty(name string) bool {
	return m.dirty.Add(name)
}

// DirtySet marks several accounts for refresh and returns how many were new.
func (m *Materializer) DirtySet(names []string) int {
	return m.dirty.Extend(names)
}

// DirtyAll marks every account for refresh.
func (m *Materializer) DirtyAll(ctx context.Context) (int, error) {
	names, err := m.store.AccountNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("dirty all accounts: %w", err)
	}
	return m.DirtySet(names), nil
}

// DirtyOldest marks the limit least recently cached accounts.
func (m *Materializer) DirtyOldest(ctx context.Context, limit int) (int, error) {
	names, err := m.store.OldestCachedAccounts(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("dirty oldest accounts: %w", err)
	}
	return m.DirtySet(names), nil
}

// Pending returns the dirty queue length.
func (m *Materializer) Pending() int {
	return m.dirty.Len()
}

// Flush refreshes one spread-th of the dirty queue from the chain. With trx
// the writes run in their own transaction; otherwise they join whatever
// transaction ctx carries.
func (m *Materializer) Flush(ctx context.Context, trx bool, spread int) (int, error) {
	names := m.dirty.ShiftPortion(spread)
	if len(names) == 0 {
		return 0, nil
	}
	if trx {
		m.logger.Info("[SYNC] update accounts", zap.Int("count", len(names)))
	}

	start := time.Now()
	fetched, err := m.fetch(ctx, names)
	if err != nil {
		m.dirty.Extend(names)
		return 0, err
	}
	fetchDone := time.Now()

	cachedAt := m.now().UTC().Truncate(time.Second)
	rows := make([]*models.AccountCache, 0, len(names))
	for _, acct := range fetched {
		row, err := m.cacheRow(acct, cachedAt)
		if err != nil {
			m.dirty.Extend(names)
			return 0, err
		}
		rows = append(rows, row)
	}

	write := func(ctx context.Context) error {
		for _, batch := range utils.Chunk(rows, fetchBatch) {
			if err := m.store.UpdateAccountCaches(ctx, batch); err != nil {
				return err
			}
		}
		return nil
	}
	if trx {
		err = m.store.InTx(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		m.dirty.Extend(names)
		return 0, fmt.Errorf("write account cache: %w", err)
	}

	if trx || len(names) > fetchBatch {
		m.logger.Info("[SYNC] accounts cached",
			zap.Int("count", len(rows)),
			zap.Duration("fetch", fetchDone.Sub(start)),
			zap.Duration("write", time.Since(fetchDone)),
		)
	}
	return len(names), nil
}

// fetch pulls snapshots in 1000-name batches on a bounded pool, keeping input order.
func (m *Materializer) fetch(ctx context.Context, names []string) ([]*rpc.Account, error) {
	chunks := utils.Chunk(names, fetchBatch)
	results := make([][]*rpc.Account, len(chunks))

	var (
		mu       sync.Mutex
		firstErr error
	)
	pool := pond.NewPool(fetchWorkers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i, chunk := range chunks {
		group.Submit(func() {
			accounts, err := m.chain.GetAccounts(groupCtx, chunk)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("get accounts: %w", err)
				}
				mu.Unlock()
				return
			}
			results[i] = accounts
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*rpc.Account, 0, len(names))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (m *Materializer) cacheRow(acct *rpc.Account, cachedAt time.Time) (*models.AccountCache, error) {
	id, err := m.GetID(acct.Name)
	if err != nil {
		return nil, err
	}

	vests, err := vestsOf(acct.VestingShares)
	if err != nil {
		return nil, fmt.Errorf("account %s vesting_shares: %w", acct.Name, err)
	}
	received, err := vestsOf(acct.ReceivedVesting)
	if err != nil {
		return nil, fmt.Errorf("account %s received_vesting_shares: %w", acct.Name, err)
	}
	delegated, err := vestsOf(acct.DelegatedVesting)
	if err != nil {
		return nil, fmt.Errorf("account %s delegated_vesting_shares: %w", acct.Name, err)
	}

	created, err := normalize.ParseTime(acct.Created)
	if err != nil {
		return nil, fmt.Errorf("account %s created: %w", acct.Name, err)
	}

	prof := ParseProfile(acct.PostingJSONMetadata, acct.JSONMetadata)
	row := &models.AccountCache{
		Name:         acct.Name,
		CreatedAt:    created,
		Proxy:        acct.Proxy,
		PostCount:    acct.PostCount,
		Reputation:   normalize.RepLog10(acct.Reputation.String()),
		ProxyWeight:  ProxyWeight(acct.Proxy, vests, acct.ProxiedVsfVotes),
		VoteWeight:   vests.Add(received).Sub(delegated).InexactFloat64(),
		ActiveAt:     activeAt(created, acct),
		CachedAt:     cachedAt,
		DisplayName:  prof.Name,
		About:        prof.About,
		Location:     prof.Location,
		Website:      prof.Website,
		ProfileImage: prof.ProfileImage,
		CoverImage:   prof.CoverImage,
		RawJSON:      string(acct.Raw),
	}
	if rank, ok := m.ranks.Load().Load(id); ok {
		row.Rank = &rank
	}
	return row, nil
}

// ProxyWeight is zero for accounts that proxy their vote, otherwise own
// vests plus every vote proxied to them.
func ProxyWeight(proxy string, vests decimal.Decimal, proxied []json.Number) float64 {
	if proxy != "" {
		return 0
	}
	weight := vests.InexactFloat64()
	for _, n := range proxied {
		f, err := n.Float64()
		if err != nil {
			continue
		}
		weight += f / ProxiedVSFScale
	}
	return weight
}

func vestsOf(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, nil
	}
	return normalize.AmountOf(raw, normalize.VESTS)
}

func activeAt(created time.Time, acct *rpc.Account) time.Time {
	stamps := []time.Time{created}
	for _, s := range []string{acct.LastAccountUpdate, acct.LastPost, acct.LastRootPost, acct.LastVoteTime} {
		if t, err := normalize.ParseTime(s); err == nil {
			stamps = append(stamps, t)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].After(stamps[j]) })
	return stamps[0]
}
