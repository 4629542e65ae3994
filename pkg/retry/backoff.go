// Package retry retries startup dependencies (the database connection) with
// capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/utils"
)

type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by +/- this fraction. 0 disables it.
	Jitter float64
}

// DefaultConfig reads RETRY_MAX_ATTEMPTS, RETRY_INITIAL_DELAY and RETRY_MAX_DELAY.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   utils.EnvInt("RETRY_MAX_ATTEMPTS", 10),
		InitialDelay: utils.EnvDuration("RETRY_INITIAL_DELAY", 2*time.Second),
		MaxDelay:     utils.EnvDuration("RETRY_MAX_DELAY", time.Minute),
		Multiplier:   2,
		Jitter:       0.15,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithBackoff calls fn until it succeeds, returns a Permanent error, ctx
// ends, or MaxRetries attempts are used up.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", operation, err)
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("[INIT] connected after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("%s failed: %w", operation, perm.err)
		}
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		delay := cfg.Delay(attempt, rand.Float64())
		logger.Warn("[INIT] retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s cancelled: %w", operation, ctx.Err())
		case <-timer.C:
		}
	}
}

// Delay is the wait after the given failed attempt. r in [0, 1) picks the
// jitter; 0.5 yields the unjittered delay.
func (c Config) Delay(attempt int, r float64) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(c.MaxDelay))
	if c.Jitter > 0 {
		d += (r*2 - 1) * c.Jitter * d
	}
	return time.Duration(d)
}
