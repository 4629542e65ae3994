package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type phase struct{ initial bool }

func (p *phase) IsInitialSync() bool { return p.initial }

type key struct{ account, post int64 }

type post struct {
	id      int64
	author  int64
	depth   int
	deleted bool
	created time.Time
}

type reblog struct {
	account int64
	post    int64
	created time.Time
}

// memStore models the primary tables and the feed table with the same
// semantics as the SQL statements.
type memStore struct {
	posts   map[int64]*post
	reblogs []reblog
	feed    map[key]time.Time

	inserts   int
	failPass  bool
	txRolled  bool
	txStarted int
}

func newMemStore() *memStore {
	return &memStore{posts: map[int64]*post{}, feed: map[key]time.Time{}}
}

func (s *memStore) InsertFeedEntry(_ context.Context, postID, accountID int64, createdAt time.Time) error {
	s.inserts++
	k := key{accountID, postID}
	if _, ok := s.feed[k]; !ok {
		s.feed[k] = createdAt
	}
	return nil
}

func (s *memStore) DeleteFeedEntries(_ context.Context, postID int64) (int64, error) {
	var n int64
	for k := range s.feed {
		if k.post == postID {
			delete(s.feed, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteFeedEntry(_ context.Context, postID, accountID int64) (int64, error) {
	k := key{accountID, postID}
	if _, ok := s.feed[k]; ok {
		delete(s.feed, k)
		return 1, nil
	}
	return 0, nil
}

func (s *memStore) TruncateFeed(context.Context) error {
	s.feed = map[key]time.Time{}
	return nil
}

func (s *memStore) FeedFromPosts(ctx context.Context) (int64, error) {
	var n int64
	for _, p := range s.posts {
		if p.depth != 0 || p.deleted {
			continue
		}
		if _, ok := s.feed[key{p.author, p.id}]; !ok {
			s.feed[key{p.author, p.id}] = p.created
			n++
		}
	}
	return n, nil
}

func (s *memStore) FeedFromReblogs(context.Context) (int64, error) {
	if s.failPass {
		return 0, errors.New("disk full")
	}
	var n int64
	for _, r := range s.reblogs {
		if p := s.posts[r.post]; p == nil || p.deleted {
			continue
		}
		if _, ok := s.feed[key{r.account, r.post}]; !ok {
			s.feed[key{r.account, r.post}] = r.created
			n++
		}
	}
	return n, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txStarted++
	snapshot := make(map[key]time.Time, len(s.feed))
	for k, v := range s.feed {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		s.feed = snapshot
		s.txRolled = true
		return err
	}
	return nil
}

func (s *memStore) feedSet() map[key]bool {
	out := map[key]bool{}
	for k := range s.feed {
		out[k] = true
	}
	return out
}

func TestIncrementalWritesRejectedDuringInitialSync(t *testing.T) {
	store := newMemStore()
	c := New(zaptest.NewLogger(t), store, &phase{initial: true})
	ctx := context.Background()

	assert.ErrorIs(t, c.Insert(ctx, 1, 1, time.Now()), ErrInitialSync)
	_, err := c.Delete(ctx, 1, nil)
	assert.ErrorIs(t, err, ErrInitialSync)
	assert.Zero(t, store.inserts)
}

func TestDeleteScopes(t *testing.T) {
	store := newMemStore()
	c := New(zaptest.NewLogger(t), store, &phase{})
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.Insert(ctx, 10, 1, now))
	require.NoError(t, c.Insert(ctx, 10, 2, now))
	require.NoError(t, c.Insert(ctx, 10, 3, now))
	require.NoError(t, c.Insert(ctx, 11, 1, now))

	acct := int64(2)
	n, err := c.Delete(ctx, 10, &acct)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Delete(ctx, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, map[key]bool{{1, 11}: true}, store.feedSet())
}

func TestRebuildMatchesIncrementalReplay(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// history replayed incrementally in live mode
	live := newMemStore()
	liveCache := New(zaptest.NewLogger(t), live, &phase{})

	addPost := func(s *memStore, id, author int64, depth int) {
		s.posts[id] = &post{id: id, author: author, depth: depth, created: base.Add(time.Duration(id) * time.Minute)}
	}
	type event func(s *memStore, c *Cache)
	history := []event{
		func(s *memStore, c *Cache) {
			addPost(s, 1, 100, 0)
			if c != nil {
				require.NoError(t, c.Insert(ctx, 1, 100, s.posts[1].created))
			}
		},
		func(s *memStore, c *Cache) {
			addPost(s, 2, 101, 0)
			if c != nil {
				require.NoError(t, c.Insert(ctx, 2, 101, s.posts[2].created))
			}
		},
		func(s *memStore, c *Cache) { addPost(s, 3, 102, 1) },
		func(s *memStore, c *Cache) {
			r := reblog{account: 102, post: 1, created: base.Add(time.Hour)}
			s.reblogs = append(s.reblogs, r)
			if c != nil {
				require.NoError(t, c.Insert(ctx, r.post, r.account, r.created))
			}
		},
		func(s *memStore, c *Cache) {
			r := reblog{account: 103, post: 2, created: base.Add(2 * time.Hour)}
			s.reblogs = append(s.reblogs, r)
			if c != nil {
				require.NoError(t, c.Insert(ctx, r.post, r.account, r.created))
			}
		},
		func(s *memStore, c *Cache) {
			s.posts[2].deleted = true
			if c != nil {
				_, err := c.Delete(ctx, 2, nil)
				require.NoError(t, err)
			}
		},
		func(s *memStore, c *Cache) {
			addPost(s, 4, 100, 0)
			if c != nil {
				require.NoError(t, c.Insert(ctx, 4, 100, s.posts[4].created))
			}
		},
	}
	for _, ev := range history {
		ev(live, liveCache)
	}

	// same history applied during bulk load, then rebuilt; a stale partial
	// feed is present to check that duplicates never appear
	bulk := newMemStore()
	for _, ev := range history {
		ev(bulk, nil)
	}
	bulk.feed[key{100, 1}] = base
	bulkCache := New(zaptest.NewLogger(t), bulk, &phase{})
	require.NoError(t, bulkCache.Rebuild(ctx, true))

	assert.Equal(t, live.feedSet(), bulk.feedSet())
	assert.Len(t, bulk.feed, 3)
}

func TestRebuildWithoutTruncateIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.posts[1] = &post{id: 1, author: 7}
	store.reblogs = []reblog{{account: 8, post: 1}}
	c := New(zaptest.NewLogger(t), store, &phase{})

	require.NoError(t, c.Rebuild(context.Background(), false))
	require.NoError(t, c.Rebuild(context.Background(), false))
	assert.Len(t, store.feed, 2)
	assert.Equal(t, 2, store.txStarted)
}

func TestRebuildFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.posts[1] = &post{id: 1, author: 7}
	store.feed[key{9, 9}] = time.Time{}
	store.failPass = true
	c := New(zaptest.NewLogger(t), store, &phase{})

	require.Error(t, c.Rebuild(context.Background(), true))
	assert.True(t, store.txRolled)
	assert.Equal(t, map[key]bool{{9, 9}: true}, store.feedSet())
}
