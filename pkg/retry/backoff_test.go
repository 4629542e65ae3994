package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestWithBackoffSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), zaptest.NewLogger(t), "postgres_connection", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffGivesUp(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), zaptest.NewLogger(t), "postgres_connection", func() error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithBackoffPermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad url")
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), zaptest.NewLogger(t), "postgres_connection", func() error {
		calls++
		return Permanent(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithBackoff(ctx, fastConfig(), zaptest.NewLogger(t), "postgres_connection", func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, Jitter: 0.15}

	assert.Equal(t, time.Second, cfg.Delay(1, 0.5))
	assert.Equal(t, 4*time.Second, cfg.Delay(3, 0.5))
	assert.Equal(t, 10*time.Second, cfg.Delay(6, 0.5))
	assert.Equal(t, 850*time.Millisecond, cfg.Delay(1, 0))

	cfg.Jitter = 0
	assert.Equal(t, 2*time.Second, cfg.Delay(2, 0.99))
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("RETRY_MAX_DELAY", "5s")
	cfg := DefaultConfig()
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2*time.Second, cfg.InitialDelay)
}
