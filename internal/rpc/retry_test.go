package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	attempts := 0
	err := retryWithBackoff(context.Background(), cfg, "eth_test", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryWithBackoffStopsOnNonRetryableError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	attempts := 0
	err := retryWithBackoff(context.Background(), cfg, "eth_test", func() error {
		attempts++
		return errors.New("invalid argument")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryWithBackoffExhaustsBudget(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	attempts := 0
	err := retryWithBackoff(context.Background(), cfg, "eth_test", func() error {
		attempts++
		return errors.New("connection reset")
	})

	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestCalculateBackoffRespectsMaxDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second}
	d := calculateBackoff(10, cfg)
	require.LessOrEqual(t, d, cfg.MaxDelay+cfg.MaxDelay/4)
}
