package transport

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures the exponential-backoff-with-jitter wrapper
// around a single provider call. Field names and the delay formula match
// spec.md §4.5 exactly: delay = min(base*2^attempt, max) * (1 + U(-j,j)).
type RetryConfig struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryConfig matches spec.md §4.5's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.25,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	base := float64(c.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(c.MaxDelay); base > max {
		base = max
	}
	jitter := 1 + (rand.Float64()*2-1)*c.JitterFraction // #nosec G404 -- jitter, not a security value
	return time.Duration(base * jitter)
}

// WithRetry calls op, retrying on IsRetryable errors up to cfg.MaxRetries
// additional attempts (MaxRetries+1 total calls). A RateLimited error's
// RetryAfterMS overrides the computed delay when larger.
func WithRetry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}
		wait := cfg.delay(attempt)
		if hint, ok := RetryAfter(lastErr); ok && hint > wait {
			wait = hint
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
