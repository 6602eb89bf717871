// Package retry provides a pure retry policy composed with the underlying
// call, so attempt counts and backoff are testable in isolation from timing.
package retry

import (
	"context"
	"time"
)

// Policy describes how a call is retried. Delay receives the 1-based attempt
// number that just failed; Retryable decides whether an error is worth
// another attempt. A nil Retryable retries everything.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
	Retryable   func(error) bool
}

// Backoff returns the linear-exponential delay used by the merge load phase:
// attempt * step.
func Backoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Do runs fn until it succeeds, the policy is exhausted, a non-retryable
// error occurs, or ctx is done. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if p.Delay != nil {
			if d := p.Delay(attempt); d > 0 {
				timer := time.NewTimer(d)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
	}
	return err
}
