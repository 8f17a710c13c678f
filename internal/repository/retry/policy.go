// Package retry wraps a suggestion store with a per-item retry policy.
package retry

import (
	"context"
	"errors"
	"time"

	"redline/internal/config"
	"redline/internal/domain"
)

// BackoffFunc returns the delay before retry number attempt (0-based).
type BackoffFunc func(attempt int) time.Duration

// Policy bounds how hard a single store write is retried.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc

	// BatchFailureThreshold is how many batch writes may fail before the
	// remaining items fall back to individual writes.
	BatchFailureThreshold int

	// Retryable reports whether err is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(err error) bool
}

// Exponential returns initial * multiplier^attempt, capped at maxDelay.
func Exponential(initial, maxDelay time.Duration, multiplier float64) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		delay := float64(initial)
		for i := 0; i < attempt; i++ {
			delay *= multiplier
			if time.Duration(delay) >= maxDelay {
				return maxDelay
			}
		}
		return min(time.Duration(delay), maxDelay)
	}
}

// PolicyFromConfig builds a policy from the engine's store_retry section.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:           cfg.MaxAttempts,
		Backoff:               Exponential(cfg.InitialBackoff, cfg.MaxBackoff, cfg.Multiplier),
		BatchFailureThreshold: cfg.BatchFailureThreshold,
	}
}

// IsRetryable treats store failures as transient and everything else
// (not found, conflict, validation, cancellation) as final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrStore)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	err := op(ctx)
	for attempt := 1; attempt < attempts && err != nil && p.retryable(err); attempt++ {
		if werr := wait(ctx, p.delay(attempt-1)); werr != nil {
			return werr
		}
		err = op(ctx)
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
