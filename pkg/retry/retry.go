// Package retry implements retry with an escalating per-attempt timeout.
//
// Unlike backoff that waits between attempts, this policy retries a timed-out
// request immediately with a larger timeout budget, up to a ceiling. It exists
// for whole-request uploads where a timeout usually means the budget was too
// small for the payload, not that the server needs a pause.
package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Config holds the timeout ladder configuration.
type Config struct {
	InitialTimeout time.Duration // per-attempt timeout of the first attempt
	TimeoutCeiling time.Duration // an attempt at or above this timeout is final
	Multiplier     int64         // timeout growth factor between attempts
}

// DefaultConfig returns the ladder used for uploads: 1s, then 10s, then give up.
func DefaultConfig() Config {
	return Config{
		InitialTimeout: 1 * time.Second,
		TimeoutCeiling: 10 * time.Second,
		Multiplier:     10,
	}
}

// IsTimeout reports whether err represents a request timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Do executes fn, retrying on timeout with an escalated per-attempt timeout.
//
// fn receives a context carrying the attempt's deadline plus the timeout value
// for logging. Non-timeout errors are returned immediately. A timeout on an
// attempt whose budget already reached the ceiling is returned as-is, not
// retried. Cancellation of the parent context stops the ladder.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, timeout time.Duration) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context, timeout time.Duration) (struct{}, error) {
		return struct{}{}, fn(ctx, timeout)
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context, timeout time.Duration) (T, error)) (T, error) {
	var zero T

	timeout := cfg.InitialTimeout
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := fn(attemptCtx, timeout)
		cancel()

		if err == nil {
			return result, nil
		}
		if !IsTimeout(err) {
			return zero, err
		}
		if timeout >= cfg.TimeoutCeiling {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		timeout *= time.Duration(cfg.Multiplier)
		if timeout > cfg.TimeoutCeiling {
			timeout = cfg.TimeoutCeiling
		}
	}
}
