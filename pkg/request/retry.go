package request

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DelayFunc returns how long to wait after the given failed attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// Linear waits base × attempt.
func Linear(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Constant waits d after every attempt.
func Constant(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// ErrRetryable marks an error as worth another attempt. Errors that do not
// wrap it stop the loop immediately.
var ErrRetryable = errors.New("retryable")

// Retryable wraps err so Retry keeps going.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// Retry calls fn up to attempts times, sleeping delay(n) between failed
// attempts. It stops early on success, on a non-retryable error, or when
// ctx is done. The last error is returned wrapped with the attempt count.
func Retry[T any](ctx context.Context, attempts int, delay DelayFunc, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		val, err := fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRetryable) {
			return zero, err
		}
		if attempt == attempts || delay == nil {
			continue
		}

		wait := delay(attempt)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
