package rpc

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ponder-go/ponder/internal/metrics"
	pkgrpc "github.com/ponder-go/ponder/pkg/rpc"
)

// RetryConfig controls the backoff schedule applied to retryable RPC calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig mirrors the defaults applied by the config loader when
// a chain's retry block is left unset.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// calculateBackoff returns the delay before the given attempt (1-indexed),
// exponential with +/-25% jitter so a burst of failures does not resynchronize
// into a thundering herd on retry.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(2, float64(attempt-1))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}

	jitter := base * 0.25
	delay := base - jitter + rand.Float64()*2*jitter //nolint:gosec // jitter does not need to be cryptographically random

	return time.Duration(delay)
}

// retryWithBackoff runs fn, retrying retryable errors up to cfg.MaxAttempts
// times with exponential backoff. It returns immediately on a non-retryable
// error or on context cancellation.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, method string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !retryableError(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		metrics.RPCRetryInc(method)

		delay := calculateBackoff(attempt, cfg)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &pkgrpc.RpcError{Method: method, Err: lastErr}
}
