// Package retryutil wraps fallible remote calls in a bounded, jittered
// backoff loop with caller-supplied error classification.
package retryutil

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config controls one retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint64
	// InitialDelay seeds the exponential backoff.
	InitialDelay time.Duration
	// MaxDelay caps the delay between any two attempts.
	MaxDelay time.Duration
	// IsRetryable decides whether a failure is worth another attempt. A nil
	// predicate retries every error.
	IsRetryable func(error) bool
	// OnRetry is invoked before each re-attempt, for observability. May be nil.
	OnRetry func(attempt uint64, err error)
}

func (c Config) normalised() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// Do runs op until it succeeds, fails with a non-retryable error, or exhausts
// cfg.MaxAttempts. The final error is returned unwrapped of any retry marker,
// so callers can map it to a terminal state.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	cfg = cfg.normalised()

	b := retry.NewExponential(cfg.InitialDelay)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(cfg.MaxDelay, b)
	b = retry.WithMaxRetries(cfg.MaxAttempts-1, b)

	var attempt uint64
	var lastErr error
	err := retry.Do(ctx, b, func(rctx context.Context) error {
		attempt++
		opErr := op(rctx)
		if opErr == nil {
			return nil
		}
		lastErr = opErr
		if cfg.IsRetryable != nil && !cfg.IsRetryable(opErr) {
			return opErr
		}
		if attempt < cfg.MaxAttempts && cfg.OnRetry != nil {
			cfg.OnRetry(attempt, opErr)
		}
		return retry.RetryableError(opErr)
	})
	if err != nil {
		if lastErr == nil {
			// Cancelled before the first attempt completed.
			lastErr = err
		}
		return fmt.Errorf("after %d attempt(s): %w", attempt, lastErr)
	}

	return nil
}
