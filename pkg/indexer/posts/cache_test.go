package posts

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
	"github.com/worth-network/worthx/pkg/rpc"
)

func (h *harness) onChain(c *rpc.Content) {
	h.chain.posts[postURL(c.Author, c.Permlink)] = c
}

func TestDirtyLevelPriority(t *testing.T) {
	h := newHarness(t)
	h.cache.Vote("alice", "a", 1, "")
	h.cache.Recount("alice", "a", 1)
	assert.Equal(t, LevelUpvote, h.cache.levels["alice/a"])
	h.cache.Update("alice", "a", 1)
	assert.Equal(t, LevelUpdate, h.cache.levels["alice/a"])
	h.cache.Insert("alice", "a", 1)
	h.cache.Update("alice", "a", 1)
	assert.Equal(t, LevelInsert, h.cache.levels["alice/a"])
	assert.Equal(t, 1, h.cache.Pending())
	assert.Equal(t, "upvote", LevelUpvote.String())
}

func TestFlushWritesRows(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	root := h.comment(t, "alice", "hello", "", "life")
	reply := h.comment(t, "bob", "re", "alice", "hello")
	h.onChain(content("alice", "hello", "", "life", 0))
	h.onChain(content("bob", "re", "alice", "hello", 1))

	counts, err := h.cache.Flush(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Insert)
	assert.Equal(t, 2, counts.Total())
	assert.Zero(t, h.cache.Pending())
	assert.Empty(t, h.cache.ids)
	assert.Equal(t, reply, h.cache.lastID)

	row := h.store.cache[root]
	require.NotNil(t, row)
	assert.Equal(t, "life", row.Category)
	assert.Equal(t, "hello", row.Preview)
	assert.InDelta(t, 69.83, row.AuthorRep, 0.001)
	assert.False(t, row.IsGrayed)
	assert.False(t, row.IsPaidout)
	assert.Equal(t, 1, h.store.txs)

	// reply notification for the parent author
	require.Len(t, h.store.notifs, 1)
	n := h.store.notifs[0]
	assert.Equal(t, notify.Reply, n.Type)
	assert.Equal(t, int64(2), *n.SrcID)
	assert.Equal(t, int64(1), *n.DstID)
	assert.Equal(t, reply, *n.PostID)
	assert.Equal(t, 50, n.Score)

	// empty queue flushes nothing
	counts, err = h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
}

func TestReplyNotificationSuppressed(t *testing.T) {
	cases := map[string]func(h *harness){
		"parent ignores author": func(h *harness) { h.store.ignoring[[2]int64{1, 2}] = true },
		"parent muted":          func(h *harness) { h.mutes["alice"] = true },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(h)
			h.comment(t, "alice", "hello", "", "life")
			h.comment(t, "bob", "re", "alice", "hello")
			h.onChain(content("alice", "hello", "", "life", 0))
			h.onChain(content("bob", "re", "alice", "hello", 1))
			_, err := h.cache.Flush(context.Background(), false)
			require.NoError(t, err)
			assert.Empty(t, h.store.notifs)
		})
	}
}

func TestMentionNotifications(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.comment(t, "alice", "hello", "", "life")
	c := content("alice", "hello", "", "life", 0)
	c.Body = "thanks @Bob and @carol, also @alice and @nobody"
	h.onChain(c)
	h.store.ignoring[[2]int64{3, 1}] = true

	_, err := h.cache.Flush(ctx, false)
	require.NoError(t, err)
	require.Len(t, h.store.notifs, 1)
	n := h.store.notifs[0]
	assert.Equal(t, notify.Mention, n.Type)
	assert.Equal(t, int64(2), *n.DstID)
	assert.Equal(t, id, *n.PostID)
	// two mentioned accounts cost a penalty of 2
	assert.Equal(t, 48, n.Score)

	// an edit does not repeat it
	h.cache.Update("alice", "hello", id)
	_, err = h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Len(t, h.store.notifs, 1)
}

func TestMentions(t *testing.T) {
	cases := []struct {
		body string
		want []string
	}{
		{"hi @alice", []string{"alice"}},
		{"@Alice and @alice", []string{"alice"}},
		{"mail me at bob@example.com", nil},
		{"see /@alice/post", nil},
		{"@ab is too short", nil},
		{"@alice. end", []string{"alice"}},
		{"@alice-", []string{"alice"}},
		{"@abcdefghijklmnopq", nil},
		{"@abcdefghijklmno.Q", []string{"abcdefghijklmno"}},
		{"(@bob)", []string{"bob"}},
		{"@-bob", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Mentions(tc.body), tc.body)
	}
}

func TestFlushSkipsPostsMissingOnChain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.comment(t, "alice", "hello", "", "life")
	id := h.comment(t, "alice", "gone", "", "life")
	h.onChain(content("alice", "hello", "", "life", 0))

	counts, err := h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Insert)
	assert.Len(t, h.store.cache, 1)
	assert.NotContains(t, h.store.cache, id)
	assert.Zero(t, h.cache.Pending())
}

func TestFlushRefusesToSkipLivePosts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.phase.initial = true
	h.comment(t, "alice", "first", "", "life")
	h.phase.initial = false
	h.comment(t, "alice", "second", "", "life")
	h.onChain(content("alice", "second", "", "life", 0))

	_, err := h.cache.Flush(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skips 1 uncached posts")
	// the batch stays queued
	assert.Equal(t, 1, h.cache.Pending())
}

func TestFlushRejectsNonInsertAboveCursor(t *testing.T) {
	h := newHarness(t)
	h.phase.initial = true
	id := h.comment(t, "alice", "first", "", "life")
	h.phase.initial = false
	h.onChain(content("alice", "first", "", "life", 0))

	h.cache.Update("alice", "first", id)
	_, err := h.cache.Flush(context.Background(), false)
	require.Error(t, err)
}

func TestRecountCascadesToParent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	root := h.comment(t, "alice", "hello", "", "life")
	reply := h.comment(t, "bob", "re", "alice", "hello")
	h.onChain(content("alice", "hello", "", "life", 0))
	h.onChain(content("bob", "re", "alice", "hello", 1))
	_, err := h.cache.Flush(ctx, false)
	require.NoError(t, err)

	h.cache.Recount("bob", "re", reply)
	counts, err := h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Recount)
	assert.Equal(t, LevelRecount, h.cache.levels["alice/hello"])
	assert.Contains(t, h.cache.noids, "alice/hello")

	counts, err = h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Recount)
	assert.Empty(t, h.cache.noids)
	assert.Contains(t, h.store.cache, root)
}

func TestRecoverMissingPosts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.phase.initial = true
	for _, p := range []string{"a", "b", "c", "d"} {
		h.comment(t, "alice", p, "", "life")
		h.onChain(content("alice", p, "", "life", 0))
	}
	h.store.posts[2].Promoted = decimal.NewFromInt(3)
	require.NoError(t, h.cache.RecoverMissingPosts(ctx))

	assert.Len(t, h.store.cache, 4)
	require.NotNil(t, h.store.cache[2].Promoted)
	assert.True(t, decimal.NewFromInt(3).Equal(*h.store.cache[2].Promoted))
	assert.Empty(t, h.store.notifs)

	gap, err := h.cache.DirtyMissing(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, gap)
	assert.Zero(t, h.cache.Pending())
}

func TestDirtyPaidouts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.cache[1] = &models.CachedPost{PostID: 1, Author: "alice", Permlink: "a", PayoutAt: blockDate.Add(-time.Hour)}
	h.store.cache[2] = &models.CachedPost{PostID: 2, Author: "alice", Permlink: "b", PayoutAt: blockDate.Add(-time.Minute)}
	h.store.cache[3] = &models.CachedPost{PostID: 3, Author: "bob", Permlink: "c", PayoutAt: blockDate.Add(time.Hour)}
	h.store.cache[4] = &models.CachedPost{PostID: 4, Author: "carol", Permlink: "d", PayoutAt: blockDate.Add(-time.Hour), IsPaidout: true}

	n, err := h.cache.DirtyPaidouts(ctx, blockDate)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, LevelPayout, h.cache.levels["alice/a"])
	assert.Equal(t, []string{"alice"}, h.accts.dirty)
}

func TestPromotedAmountAndVoteNotification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.comment(t, "alice", "hello", "", "life")
	h.onChain(content("alice", "hello", "", "life", 0))
	_, err := h.cache.Flush(ctx, false)
	require.NoError(t, err)

	voted := content("alice", "hello", "", "life", 0)
	voted.NetRshares = "20000000000"
	voted.PendingPayoutValue = wbd("2.000")
	voted.ActiveVotes = []rpc.ActiveVote{
		{Voter: "carol", Rshares: "20000000000", Percent: "10000", Reputation: "0", Time: "2020-06-01T13:00:00"},
		{Voter: "dave", Rshares: "5", Percent: "100", Reputation: "0"},
	}
	h.onChain(voted)

	h.cache.UpdatePromotedAmount(id, decimal.RequireFromString("5.000"))
	h.cache.Vote("alice", "hello", id, "carol")
	h.cache.Vote("alice", "hello", id, "dave")
	counts, err := h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Upvote)

	row := h.store.cache[id]
	require.NotNil(t, row.Promoted)
	assert.Equal(t, "5", row.Promoted.String())
	assert.Equal(t, "2", row.Payout.String())
	assert.Equal(t, 2, row.TotalVotes)
	assert.Equal(t, 2, row.UpVotes)
	assert.Equal(t, "carol,20000000000,10000,25\ndave,5,100,25", row.Votes)

	require.Len(t, h.store.notifs, 1)
	n := h.store.notifs[0]
	assert.Equal(t, notify.Vote, n.Type)
	assert.Equal(t, int64(3), *n.SrcID)
	assert.Equal(t, int64(1), *n.DstID)
	assert.Equal(t, 75, n.Score)
	assert.Equal(t, "$2.000", n.Payload)
	assert.Equal(t, time.Date(2020, 6, 1, 13, 0, 0, 0, time.UTC), n.When)

	// the same vote is not notified twice
	h.cache.Vote("alice", "hello", id, "carol")
	_, err = h.cache.Flush(ctx, false)
	require.NoError(t, err)
	assert.Len(t, h.store.notifs, 1)
}

func TestUndeleteBelowCursorWritesPlaceholder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.cache[10] = &models.CachedPost{PostID: 10}
	require.NoError(t, h.cache.Undelete(ctx, 4, "alice", "old", "life"))
	require.Contains(t, h.store.cache, int64(4))
	assert.Equal(t, "life", h.store.cache[4].Category)
	assert.Equal(t, LevelUpdate, h.cache.levels["alice/old"])

	require.NoError(t, h.cache.Undelete(ctx, 11, "alice", "new", "life"))
	assert.Equal(t, LevelInsert, h.cache.levels["alice/new"])
}

func TestBuildRow(t *testing.T) {
	core := &models.Post{ID: 1, Category: "life"}

	c := content("alice", "p", "", "life", 0)
	c.Body = "a\x00b"
	c.JSONMetadata = `{"tags":["NSFW","x"],"image":["https://img.example/a.png"]}`
	c.CashoutTime = "1969-12-31T23:59:59"
	c.LastPayout = "2020-06-08T12:00:00"
	c.MaxAcceptedPayout = wbd("0.000")
	c.PercentWorthDollars = 0
	c.NetRshares = "1000000000"
	c.AuthorReputation = "-1000000000000"
	c.ActiveVotes = []rpc.ActiveVote{{Voter: "x", Rshares: "-300000000000000"}}

	row, err := buildRow(1, c, core, nil, muteSet{})
	require.NoError(t, err)
	assert.Equal(t, "a[NUL]b", row.Body)
	assert.True(t, row.IsNSFW)
	assert.Equal(t, "https://img.example/a.png", row.ImgURL)
	assert.True(t, row.IsPaidout)
	assert.Equal(t, time.Date(2020, 6, 8, 12, 0, 0, 0, time.UTC), row.PayoutAt)
	assert.True(t, row.IsDeclined)
	assert.True(t, row.IsFullPower)
	assert.True(t, row.IsGrayed)
	assert.True(t, row.IsHidden)
	assert.Equal(t, 4.0, row.FlagWeight)
	assert.Equal(t, 1, row.TotalVotes)
	assert.Zero(t, row.UpVotes)
	assert.Nil(t, row.Promoted)

	created := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.InDelta(t, 2+float64(created.Unix())/hotScale, row.ScHot, 1e-9)
	assert.InDelta(t, 2+float64(created.Unix())/trendScale, row.ScTrend, 1e-9)

	var legacy map[string]any
	require.NoError(t, json.Unmarshal([]byte(row.RawJSON), &legacy))
	assert.Contains(t, legacy, "max_accepted_payout")
	var md map[string]any
	require.NoError(t, json.Unmarshal([]byte(row.JSON), &md))
	assert.Contains(t, md, "image")
}

func TestBuildRowDeclinedByBeneficiary(t *testing.T) {
	c := content("alice", "p", "", "life", 0)
	c.Beneficiaries = []rpc.Beneficiary{{Account: "null", Weight: 10000}}
	row, err := buildRow(1, c, &models.Post{}, nil, muteSet{"alice": true})
	require.NoError(t, err)
	assert.True(t, row.IsDeclined)
	assert.False(t, row.IsFullPower)
	assert.True(t, row.IsGrayed)
	assert.False(t, row.IsHidden)
}

func TestScoreNegative(t *testing.T) {
	created := time.Unix(240000, 0)
	got := score(decimal.NewFromInt(-1e10), created, trendScale)
	assert.InDelta(t, -3+1.0, got, 1e-9)
	assert.InDelta(t, 1.0, score(decimal.Zero, created, trendScale), 1e-9)
	assert.False(t, math.IsNaN(score(decimal.NewFromInt(1), created, hotScale)))
}
