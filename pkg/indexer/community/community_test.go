package community

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	models "github.com/worth-network/worthx/pkg/db/models/social"
	"github.com/worth-network/worthx/pkg/indexer/notify"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) CommunityIDs(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *mockStore) InsertCommunity(ctx context.Context, c *models.Community) (bool, error) {
	args := m.Called(ctx, c)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) InsertRole(ctx context.Context, accountID, communityID int64, roleID int, createdAt time.Time) error {
	return m.Called(ctx, accountID, communityID, roleID, createdAt).Error(0)
}

func (m *mockStore) RecalcCommunityPayouts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type accounts map[string]int64

func (a accounts) GetID(name string) (int64, error) { return a[name], nil }

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Write(ctx context.Context, n notify.Notice) error {
	return m.Called(ctx, n).Error(0)
}

func TestIsCommunityName(t *testing.T) {
	assert.True(t, IsCommunityName("worth-12345"))
	assert.True(t, IsCommunityName("worth-3123456"))
	assert.False(t, IsCommunityName("worth-4123456"))
	assert.False(t, IsCommunityName("worth-123"))
	assert.False(t, IsCommunityName("worth-12345678"))
	assert.False(t, IsCommunityName("alice"))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{}
	n := &mockNotifier{}

	store.On("InsertCommunity", ctx, mock.MatchedBy(func(c *models.Community) bool {
		return c.ID == 7 && c.Name == "worth-21000" && c.TypeID == 2
	})).Return(true, nil).Once()
	store.On("InsertRole", ctx, int64(7), int64(7), RoleOwner, date).Return(nil).Once()
	n.On("Write", ctx, mock.MatchedBy(func(no notify.Notice) bool {
		return no.Type == notify.NewCommunity && *no.DstID == 7 && *no.CommunityID == 7
	})).Return(nil).Once()

	r := New(zaptest.NewLogger(t), store, accounts{"worth-21000": 7, "bob": 8}, n)
	require.NoError(t, r.Register(ctx, []string{"bob", "worth-21000"}, date))
	// already known
	require.NoError(t, r.Register(ctx, []string{"worth-21000"}, date))

	store.AssertExpectations(t)
	n.AssertExpectations(t)

	id := r.CommunityID("worth-21000")
	require.NotNil(t, id)
	assert.Equal(t, int64(7), *id)
	assert.Nil(t, r.CommunityID("bob"))
	assert.Nil(t, r.CommunityID("worth-10000"))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("CommunityIDs", ctx).Return(map[string]int64{"worth-10001": 3}, nil)
	r := New(zaptest.NewLogger(t), store, accounts{}, &mockNotifier{})
	require.NoError(t, r.Load(ctx))
	assert.Equal(t, int64(3), *r.CommunityID("worth-10001"))
}
