// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/julianstephens/routineo/internal/logger"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration // wait before the second attempt
	Multiplier  float64       // growth of the delay per attempt; <= 1 keeps it constant
	MaxDelay    time.Duration // 0 means unbounded
	Retryable   func(error) bool
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backOff returns the wait schedule for p: no jitter, no elapsed-time limit,
// and at most MaxAttempts-1 waits.
func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	if p.attempts() == 1 {
		// WithMaxRetries treats 0 as unlimited
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Delay
	eb.RandomizationFactor = 0
	eb.Multiplier = p.Multiplier
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = time.Duration(math.MaxInt64)
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.attempts()-1)), ctx)
}

// Do calls fn until it succeeds, returns an error Retryable rejects, the
// attempts run out, or ctx is done. It returns fn's last error.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	var last error
	calls := 0
	err := backoff.RetryNotify(func() error {
		calls++
		last = fn(ctx)
		if last != nil && (p.Retryable == nil || !p.Retryable(last)) {
			return backoff.Permanent(last)
		}
		return last
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		logger.Debug("Retrying", "op", op, "attempt", calls+1, "wait", wait, "error", err)
	})
	if err == nil {
		return nil
	}
	if calls >= p.attempts() && p.Retryable != nil && p.Retryable(last) {
		logger.Warn("Giving up after retries", "op", op, "attempts", calls, "error", last)
	}
	if last != nil {
		// cancellation surfaces as ctx.Err() from backoff; callers want the
		// operation's own failure
		return last
	}
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
