package follow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
)

type edge struct{ follower, following int64 }

type memStore struct {
	edges     map[edge]int
	followers map[int64]int
	following map[int64]int
	failApply bool
	recounts  int
}

func newMemStore() *memStore {
	return &memStore{edges: map[edge]int{}, followers: map[int64]int{}, following: map[int64]int{}}
}

func (s *memStore) FollowState(_ context.Context, follower, following int64) (int, bool, error) {
	st, ok := s.edges[edge{follower, following}]
	return st, ok, nil
}

func (s *memStore) UpsertFollow(_ context.Context, f *models.Follow) error {
	s.edges[edge{f.Follower, f.Following}] = f.State
	return nil
}

func (s *memStore) ApplyFollowCounts(_ context.Context, column string, deltas map[int64]int) error {
	if s.failApply {
		return errors.New("db down")
	}
	target := s.followers
	if column == "following" {
		target = s.following
	}
	for id, n := range deltas {
		target[id] += n
	}
	return nil
}

func (s *memStore) RecountFollows(context.Context) error {
	s.recounts++
	s.followers, s.following = map[int64]int{}, map[int64]int{}
	for e, st := range s.edges {
		if st&models.FollowBlog != 0 {
			s.followers[e.following]++
			s.following[e.follower]++
		}
	}
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type accounts map[string]int64

func (a accounts) Exists(name string) bool { _, ok := a[name]; return ok }

func (a accounts) GetID(name string) (int64, error) {
	if id, ok := a[name]; ok {
		return id, nil
	}
	return 0, errors.New("unknown account")
}

func (a accounts) DefaultScore(string) (int, error) { return 40, nil }

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Write(ctx context.Context, n notify.Notice) error {
	return m.Called(ctx, n).Error(0)
}

type phase struct{ initial bool }

func (p *phase) IsInitialSync() bool { return p.initial }

var date = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, store *memStore, n *mockNotifier, initial bool) *Tracker {
	accts := accounts{"alice": 1, "bob": 2, "carol": 3}
	return New(zaptest.NewLogger(t), store, accts, n, &phase{initial: initial})
}

func payload(follower, following string, what ...string) []byte {
	out := `{"follower":"` + follower + `","following":"` + following + `","what":[`
	for i, w := range what {
		if i > 0 {
			out += ","
		}
		out += `"` + w + `"`
	}
	return []byte(out + `]}`)
}

func TestOpState(t *testing.T) {
	cases := []struct {
		what []string
		want int
	}{
		{[]string{}, models.FollowNone},
		{[]string{"blog"}, models.FollowBlog},
		{[]string{"ignore"}, models.FollowIgnore},
		{[]string{"blog", "ignore"}, models.FollowBlog | models.FollowIgnore},
		{[]string{"", "ignore"}, models.FollowIgnore},
		{[]string{"posts"}, models.FollowNone},
	}
	for _, tc := range cases {
		op := Op{What: tc.what}
		assert.Equal(t, tc.want, op.State(), "%v", tc.what)
	}
}

func TestFollowCountsAndNotification(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	n := &mockNotifier{}
	n.On("Write", mock.Anything, mock.MatchedBy(func(no notify.Notice) bool {
		return no.Type == notify.Follow && *no.SrcID == 1 && *no.DstID == 2 && no.Score == 40
	})).Return(nil).Once()

	tr := newTracker(t, store, n, false)
	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog"), date))
	// repeating the same state is a no-op
	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog"), date))
	assert.Equal(t, 2, tr.Pending())

	flushed, err := tr.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)
	assert.Equal(t, 1, store.followers[2])
	assert.Equal(t, 1, store.following[1])
	n.AssertExpectations(t)

	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob"), date))
	_, err = tr.Flush(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, store.followers[2])
	assert.Equal(t, 0, store.following[1])

	// refollow after an unfollow notifies again
	n.On("Write", mock.Anything, mock.MatchedBy(func(no notify.Notice) bool {
		return no.Type == notify.Follow && *no.SrcID == 1 && *no.DstID == 2
	})).Return(nil).Once()
	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog"), date))
	n.AssertNumberOfCalls(t, "Write", 2)
	n.AssertExpectations(t)
}

func TestIgnoreKeepsBlogCount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	n := &mockNotifier{}
	n.On("Write", mock.Anything, mock.Anything).Return(nil)
	tr := newTracker(t, store, n, false)

	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog"), date))
	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog", "ignore"), date))
	_, err := tr.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.followers[2])
	assert.Equal(t, models.FollowBlog|models.FollowIgnore, store.edges[edge{1, 2}])

	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "ignore"), date))
	_, err = tr.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, store.followers[2])

	require.NoError(t, tr.ForceRecount(ctx))
	assert.Equal(t, 0, store.followers[2])
}

func TestInvalidOpsIgnored(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, store, &mockNotifier{}, false)

	bad := [][]byte{
		payload("bob", "carol", "blog"),   // signer mismatch
		payload("alice", "alice", "blog"), // self follow
		payload("alice", "zed", "blog"),   // unknown account
		[]byte(`{"follower":"alice","following":"bob","what":"blog"}`),
		[]byte(`{"follower":"alice","following":"bob"}`),
		[]byte(`not json`),
	}
	for _, p := range bad {
		require.NoError(t, tr.FollowOp(ctx, "alice", p, date))
	}
	assert.Empty(t, store.edges)
	assert.Zero(t, tr.Pending())
}

func TestInitialSyncSkipsCounts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, store, &mockNotifier{}, true)

	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog"), date))
	require.NoError(t, tr.FollowOp(ctx, "carol", payload("carol", "bob", "blog"), date))
	assert.Zero(t, tr.Pending())

	require.NoError(t, tr.ForceRecount(ctx))
	assert.Equal(t, 2, store.followers[2])
	assert.Equal(t, 1, store.recounts)
}

func TestFlushKeepsDeltasOnError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	n := &mockNotifier{}
	n.On("Write", mock.Anything, mock.Anything).Return(nil)
	tr := newTracker(t, store, n, false)

	require.NoError(t, tr.FollowOp(ctx, "alice", payload("alice", "bob", "blog"), date))
	store.failApply = true
	_, err := tr.Flush(ctx, false)
	require.Error(t, err)
	assert.Equal(t, 2, tr.Pending())

	store.failApply = false
	_, err = tr.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.followers[2])
}
