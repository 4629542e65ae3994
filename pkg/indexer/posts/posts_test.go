package posts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/rpc"
)

type harness struct {
	store *memStore
	chain *fakeChain
	accts *fakeAccounts
	feed  *fakeFeed
	phase *phase
	cache *Cache
	posts *Posts
	mutes muteSet
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		store: newMemStore(),
		chain: &fakeChain{posts: map[string]*rpc.Content{}},
		accts: &fakeAccounts{ids: map[string]int64{"alice": 1, "bob": 2, "carol": 3, "dave": 4}},
		feed:  &fakeFeed{rows: map[feedEntry]bool{}},
		phase: &phase{},
		mutes: muteSet{},
	}
	logger := zaptest.NewLogger(t)
	h.cache = NewCache(logger, h.store, h.chain, h.accts, h.mutes, h.store, h.phase)
	h.posts = New(logger, h.store, h.cache, h.feed, h.accts, communities{"worth-12345": 99}, h.phase)
	return h
}

func (h *harness) comment(t *testing.T, author, permlink, parentAuthor, parentPermlink string) int64 {
	t.Helper()
	op := &rpc.CommentOp{Author: author, Permlink: permlink, ParentAuthor: parentAuthor, ParentPermlink: parentPermlink}
	require.NoError(t, h.posts.CommentOp(context.Background(), op, blockDate))
	id, _, ok, err := h.posts.GetIDAndDepth(context.Background(), author, permlink)
	require.NoError(t, err)
	require.True(t, ok)
	return id
}

func TestCommentOpInsertsRootAndReply(t *testing.T) {
	h := newHarness(t)

	root := h.comment(t, "alice", "hello", "", "worth-12345")
	reply := h.comment(t, "bob", "re-hello", "alice", "hello")
	nested := h.comment(t, "carol", "re-re", "bob", "re-hello")

	rootRow := h.store.posts[root]
	assert.Equal(t, 0, rootRow.Depth)
	assert.Equal(t, "worth-12345", rootRow.Category)
	require.NotNil(t, rootRow.CommunityID)
	assert.Equal(t, int64(99), *rootRow.CommunityID)

	replyRow := h.store.posts[reply]
	assert.Equal(t, 1, replyRow.Depth)
	assert.Equal(t, root, *replyRow.ParentID)
	assert.Equal(t, "worth-12345", replyRow.Category)
	assert.Equal(t, int64(99), *replyRow.CommunityID)
	assert.Equal(t, 2, h.store.posts[nested].Depth)

	// only the root lands in the feed
	assert.Equal(t, map[feedEntry]bool{{root, 1}: true}, h.feed.rows)

	// parents were marked for recount but their insert level wins
	assert.Equal(t, LevelInsert, h.cache.levels["alice/hello"])
	assert.Equal(t, LevelInsert, h.cache.levels["bob/re-hello"])
	assert.Equal(t, 3, h.cache.Pending())
}

func TestCommentOpReplyToUnknownParent(t *testing.T) {
	h := newHarness(t)
	op := &rpc.CommentOp{Author: "bob", Permlink: "x", ParentAuthor: "alice", ParentPermlink: "nope"}
	err := h.posts.CommentOp(context.Background(), op, blockDate)
	require.ErrorIs(t, err, ErrParentMissing)
}

func TestCommentOpEditMarksUpdate(t *testing.T) {
	h := newHarness(t)
	id := h.comment(t, "alice", "hello", "", "life")
	h.cache.queue.ShiftAll()
	h.cache.levels = map[string]Level{}

	h.comment(t, "alice", "hello", "", "life")
	assert.Equal(t, LevelUpdate, h.cache.levels["alice/hello"])
	assert.Equal(t, id, h.cache.ids["alice/hello"])
	assert.Len(t, h.store.posts, 1)
}

func TestDeleteOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	root := h.comment(t, "alice", "hello", "", "life")
	reply := h.comment(t, "bob", "re", "alice", "hello")
	h.store.cache[root] = &models.CachedPost{PostID: root, Author: "alice", Permlink: "hello"}
	h.cache.queue.ShiftAll()

	require.NoError(t, h.posts.DeleteOp(ctx, &rpc.DeleteCommentOp{Author: "bob", Permlink: "re"}))
	assert.True(t, h.store.posts[reply].IsDeleted)
	assert.Equal(t, LevelRecount, h.cache.levels["alice/hello"])
	assert.False(t, h.cache.queue.Contains("bob/re"))

	require.NoError(t, h.posts.DeleteOp(ctx, &rpc.DeleteCommentOp{Author: "alice", Permlink: "hello"}))
	assert.True(t, h.store.posts[root].IsDeleted)
	assert.Empty(t, h.feed.rows)
	assert.NotContains(t, h.store.cache, root)

	// unknown and already deleted posts are ignored
	require.NoError(t, h.posts.DeleteOp(ctx, &rpc.DeleteCommentOp{Author: "alice", Permlink: "hello"}))
	require.NoError(t, h.posts.DeleteOp(ctx, &rpc.DeleteCommentOp{Author: "zed", Permlink: "x"}))
}

func TestCommentOpUndeletesDeletedPost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.comment(t, "alice", "hello", "", "life")
	require.NoError(t, h.posts.DeleteOp(ctx, &rpc.DeleteCommentOp{Author: "alice", Permlink: "hello"}))
	require.Empty(t, h.feed.rows)

	again := h.comment(t, "alice", "hello", "", "travel")
	assert.Equal(t, id, again)
	assert.False(t, h.store.posts[id].IsDeleted)
	assert.Equal(t, "travel", h.store.posts[id].Category)
	assert.True(t, h.feed.rows[feedEntry{id, 1}])
	assert.Equal(t, LevelInsert, h.cache.levels["alice/hello"])
}

func TestInitialSyncSkipsCacheAndFeed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.phase.initial = true

	h.comment(t, "alice", "hello", "", "life")
	h.comment(t, "bob", "re", "alice", "hello")
	require.NoError(t, h.posts.DeleteOp(ctx, &rpc.DeleteCommentOp{Author: "bob", Permlink: "re"}))

	assert.Zero(t, h.cache.Pending())
	assert.Empty(t, h.feed.rows)
	assert.Len(t, h.store.posts, 2)
}
