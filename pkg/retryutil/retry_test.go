package retryutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fastConfig()
	cfg.OnRetry = func(attempt uint64, err error) {
		retries++
		require.ErrorIs(t, err, errBoom)
	}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, retries)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	cfg := fastConfig()
	cfg.IsRetryable = func(err error) bool { return !errors.Is(err, permanent) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 3, calls)
}

func TestDoDoesNotNotifyAfterFinalAttempt(t *testing.T) {
	retries := 0
	cfg := fastConfig()
	cfg.OnRetry = func(attempt uint64, err error) { retries++ }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		return errBoom
	})

	require.Error(t, err)
	require.Equal(t, 2, retries, "no notification before a retry that never happens")
}
