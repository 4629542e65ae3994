// Package follow applies follow/ignore custom_json ops and keeps the
// per-account follower counters in step.
package follow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
)

type Store interface {
	FollowState(ctx context.Context, follower, following int64) (int, bool, error)
	UpsertFollow(ctx context.Context, f *models.Follow) error
	ApplyFollowCounts(ctx context.Context, column string, deltas map[int64]int) error
	RecountFollows(ctx context.Context) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Accounts interface {
	Exists(name string) bool
	GetID(name string) (int64, error)
	DefaultScore(name string) (int, error)
}

type Notifier interface {
	Write(ctx context.Context, n notify.Notice) error
}

type Phase interface {
	IsInitialSync() bool
}

// Op is the payload of a ["follow", {...}] custom_json.
type Op struct {
	Follower  string   `json:"follower"`
	Following string   `json:"following"`
	What      []string `json:"what"`
}

// State folds the what list into the stored bit set. The first element
// selects blog, the second ignore; a lone "ignore" is accepted too.
func (o *Op) State() int {
	state := models.FollowNone
	if len(o.What) > 0 {
		switch o.What[0] {
		case "blog":
			state |= models.FollowBlog
		case "ignore":
			state |= models.FollowIgnore
		}
	}
	if len(o.What) > 1 && o.What[1] == "ignore" {
		state |= models.FollowIgnore
	}
	return state
}

type Tracker struct {
	logger   *zap.Logger
	store    Store
	accounts Accounts
	notifier Notifier
	phase    Phase

	mu        sync.Mutex
	followers map[int64]int
	following map[int64]int
}

func New(logger *zap.Logger, store Store, accounts Accounts, notifier Notifier, phase Phase) *Tracker {
	return &Tracker{
		logger:    logger,
		store:     store,
		accounts:  accounts,
		notifier:  notifier,
		phase:     phase,
		followers: make(map[int64]int),
		following: make(map[int64]int),
	}
}

// FollowOp applies one follow op signed by account. Malformed or
// unauthorized ops are dropped without error.
func (t *Tracker) FollowOp(ctx context.Context, account string, payload json.RawMessage, date time.Time) error {
	var op Op
	if err := json.Unmarshal(payload, &op); err != nil {
		t.logger.Debug("invalid follow op", zap.String("account", account), zap.Error(err))
		return nil
	}
	if !t.valid(account, &op) {
		return nil
	}

	followerID, err := t.accounts.GetID(op.Follower)
	if err != nil {
		return err
	}
	followingID, err := t.accounts.GetID(op.Following)
	if err != nil {
		return err
	}

	newState := op.State()
	oldState, found, err := t.store.FollowState(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	if newState == oldState {
		return nil
	}

	err = t.store.UpsertFollow(ctx, &models.Follow{
		Follower:  followerID,
		Following: followingID,
		State:     newState,
		CreatedAt: date,
	})
	if err != nil {
		return fmt.Errorf("follow %s->%s: %w", op.Follower, op.Following, err)
	}

	if t.phase.IsInitialSync() {
		return nil
	}

	wasBlog := oldState&models.FollowBlog != 0
	isBlog := newState&models.FollowBlog != 0
	switch {
	case isBlog && !wasBlog:
		t.delta(followerID, followingID, 1)
		if !found || oldState == models.FollowNone {
			return t.notify(ctx, op.Follower, followerID, followingID, date)
		}
	case wasBlog && !isBlog:
		t.delta(followerID, followingID, -1)
	}
	return nil
}

func (t *Tracker) valid(account string, op *Op) bool {
	switch {
	case op.What == nil:
		return false
	case op.Follower == "" || op.Following == "":
		return false
	case op.Follower != account:
		return false
	case op.Follower == op.Following:
		return false
	case !t.accounts.Exists(op.Follower) || !t.accounts.Exists(op.Following):
		return false
	}
	return true
}

func (t *Tracker) delta(followerID, followingID int64, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.following[followerID] += n
	t.followers[followingID] += n
}

func (t *Tracker) notify(ctx context.Context, follower string, followerID, followingID int64, date time.Time) error {
	score, err := t.accounts.DefaultScore(follower)
	if err != nil {
		return err
	}
	return t.notifier.Write(ctx, notify.Notice{
		Type:  notify.Follow,
		When:  date,
		SrcID: notify.ID(followerID),
		DstID: notify.ID(followingID),
		Score: score,
	})
}

// Pending returns the number of accounts with unflushed count deltas.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.followers) + len(t.following)
}

// Flush writes accumulated counter deltas. Deltas are kept when the write fails.
func (t *Tracker) Flush(ctx context.Context, trx bool) (int, error) {
	t.mu.Lock()
	followers, following := t.followers, t.following
	t.followers, t.following = make(map[int64]int), make(map[int64]int)
	t.mu.Unlock()

	n := len(followers) + len(following)
	if n == 0 {
		return 0, nil
	}

	write := func(ctx context.Context) error {
		if err := t.store.ApplyFollowCounts(ctx, "followers", followers); err != nil {
			return err
		}
		return t.store.ApplyFollowCounts(ctx, "following", following)
	}
	var err error
	if trx {
		err = t.store.InTx(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		t.restore(followers, following)
		return 0, fmt.Errorf("flush follow counts: %w", err)
	}
	if trx {
		t.logger.Info("[SYNC] flushed follow counts", zap.Int("accounts", n))
	}
	return n, nil
}

func (t *Tracker) restore(followers, following map[int64]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, n := range followers {
		t.followers[id] += n
	}
	for id, n := range following {
		t.following[id] += n
	}
}

// ForceRecount rebuilds every counter from the edges and drops pending deltas.
func (t *Tracker) ForceRecount(ctx context.Context) error {
	t.logger.Info("[INIT] recounting follows")
	start := time.Now()
	if err := t.store.RecountFollows(ctx); err != nil {
		return fmt.Errorf("recount follows: %w", err)
	}
	t.mu.Lock()
	t.followers, t.following = make(map[int64]int), make(map[int64]int)
	t.mu.Unlock()
	t.logger.Info("[INIT] recounted follows", zap.Duration("duration", time.Since(start)))
	return nil
}
