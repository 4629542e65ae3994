package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/rpc"
)

type memStore struct {
	posts    map[string]int64
	promoted map[int64]decimal.Decimal
	payments []*models.Payment
}

func newMemStore() *memStore {
	return &memStore{
		posts:    map[string]int64{"alice/my-post": 11},
		promoted: map[int64]decimal.Decimal{11: decimal.Zero},
	}
}

func (s *memStore) PostID(_ context.Context, author, permlink string) (int64, bool, error) {
	id, ok := s.posts[author+"/"+permlink]
	return id, ok, nil
}

func (s *memStore) InsertPayment(_ context.Context, p *models.Payment) (int64, error) {
	s.payments = append(s.payments, p)
	return int64(len(s.payments)), nil
}

func (s *memStore) PostPromoted(_ context.Context, id int64) (decimal.Decimal, error) {
	return s.promoted[id], nil
}

func (s *memStore) SetPostPromoted(_ context.Context, id int64, amount decimal.Decimal) error {
	s.promoted[id] = amount
	return nil
}

type accounts map[string]int64

func (a accounts) Exists(name string) bool { _, ok := a[name]; return ok }

func (a accounts) GetID(name string) (int64, error) {
	id, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("not registered: %s", name)
	}
	return id, nil
}

type cacheSpy struct {
	promoted map[int64]decimal.Decimal
	votes    []string
}

func (c *cacheSpy) UpdatePromotedAmount(postID int64, amount decimal.Decimal) {
	if c.promoted == nil {
		c.promoted = map[int64]decimal.Decimal{}
	}
	c.promoted[postID] = amount
}

func (c *cacheSpy) Vote(author, permlink string, _ int64, _ string) {
	c.votes = append(c.votes, author+"/"+permlink)
}

type phase bool

func (p phase) IsInitialSync() bool { return bool(p) }

func transfer(to, amount, memo string) *rpc.TransferOp {
	raw, _ := json.Marshal(amount)
	return &rpc.TransferOp{From: "bob", To: to, Amount: raw, Memo: memo}
}

func newProcessor(t *testing.T, store *memStore, cache *cacheSpy, initial bool) *Processor {
	accts := accounts{"alice": 1, "bob": 2, "null": 3}
	return New(zaptest.NewLogger(t), Config{}, store, accts, cache, phase(initial))
}

func TestValidPaymentPromotesPost(t *testing.T) {
	store := newMemStore()
	cache := &cacheSpy{}
	p := newProcessor(t, store, cache, false)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := p.OpTransfer(context.Background(), transfer("null", "5.000 WBD", "@alice/my-post"), 4, 1000, date)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, store.payments, 1)
	rec := store.payments[0]
	assert.Equal(t, uint64(1000), rec.BlockNum)
	assert.Equal(t, 4, rec.TxIdx)
	assert.Equal(t, int64(11), rec.PostID)
	assert.Equal(t, int64(2), rec.FromAccount)
	assert.Equal(t, int64(3), rec.ToAccount)
	assert.Equal(t, "WBD", rec.Token)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("5.000")))

	assert.True(t, store.promoted[11].Equal(decimal.RequireFromString("5")))
	assert.True(t, cache.promoted[11].Equal(decimal.RequireFromString("5")))
	assert.Equal(t, []string{"alice/my-post"}, cache.votes)

	_, err = p.OpTransfer(context.Background(), transfer("null", "2.500 WBD", "@alice/my-post"), 0, 1001, date)
	require.NoError(t, err)
	assert.True(t, store.promoted[11].Equal(decimal.RequireFromString("7.5")))
}

func TestNAIAmount(t *testing.T) {
	store := newMemStore()
	p := newProcessor(t, store, &cacheSpy{}, false)
	op := &rpc.TransferOp{
		From:   "bob",
		To:     "null",
		Amount: json.RawMessage(`{"amount":"1250","precision":3,"nai":"@@000000013"}`),
		Memo:   "@alice/my-post",
	}
	ok, err := p.OpTransfer(context.Background(), op, 0, 5, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, store.promoted[11].Equal(decimal.RequireFromString("1.25")))
}

func TestRejectionsAreSilent(t *testing.T) {
	cases := map[string]*rpc.TransferOp{
		"not burn":          transfer("carol", "5.000 WBD", "@alice/my-post"),
		"wrong token":       transfer("null", "5.000 WORTH", "@alice/my-post"),
		"no at":             transfer("null", "5.000 WBD", "not-a-valid-memo"),
		"no slash":          transfer("null", "5.000 WBD", "@alice"),
		"two slashes":       transfer("null", "5.000 WBD", "@alice/my/post"),
		"empty memo":        transfer("null", "5.000 WBD", ""),
		"unknown author":    transfer("null", "5.000 WBD", "@mallory/my-post"),
		"unknown post":      transfer("null", "5.000 WBD", "@alice/other"),
		"unparseable value": transfer("null", "lots", "@alice/my-post"),
	}
	for name, op := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			cache := &cacheSpy{}
			p := newProcessor(t, store, cache, false)
			ok, err := p.OpTransfer(context.Background(), op, 0, 1, time.Now())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, store.payments)
			assert.True(t, store.promoted[11].IsZero())
			assert.Empty(t, cache.votes)
		})
	}
}

func TestInitialSyncSkipsCache(t *testing.T) {
	store := newMemStore()
	cache := &cacheSpy{}
	p := newProcessor(t, store, cache, true)

	ok, err := p.OpTransfer(context.Background(), transfer("null", "1.000 WBD", "@alice/my-post"), 0, 1, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, store.payments, 1)
	assert.Empty(t, cache.promoted)
	assert.Empty(t, cache.votes)
}

func TestUnregisteredSenderIsStructural(t *testing.T) {
	store := newMemStore()
	op := transfer("null", "1.000 WBD", "@alice/my-post")
	op.From = "ghost"
	p := newProcessor(t, store, &cacheSpy{}, false)

	ok, err := p.OpTransfer(context.Background(), op, 0, 1, time.Now())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.payments)
}

func TestSplitMemo(t *testing.T) {
	a, p, ok := SplitMemo("@alice/my-post")
	assert.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "my-post", p)

	_, _, ok = SplitMemo("alice/my-post")
	assert.False(t, ok)
}

func TestConfigurableBurnAndToken(t *testing.T) {
	store := newMemStore()
	accts := accounts{"alice": 1, "bob": 2, "burn": 9}
	p := New(zaptest.NewLogger(t), Config{BurnAccount: "burn", Token: "WORTH"}, store, accts, &cacheSpy{}, phase(false))

	ok, err := p.OpTransfer(context.Background(), transfer("burn", "3.000 WORTH", "@alice/my-post"), 0, 1, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), store.payments[0].ToAccount)
}
