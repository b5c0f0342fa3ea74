// Package retry runs an operation under a bounded attempt budget with
// jittered exponential backoff between attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/evalboard/internal/domain/evalerr"
)

// Default policy values.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
	defaultJitter      = 0.5
	defaultMultiplier  = 2.0
)

// Policy controls how Do retries.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// Backoff produces the delay before each retry. Nil means Exponential
	// with the default delays.
	Backoff backoff.BackOff
	// Retryable decides whether an error deserves another attempt.
	// Nil means evalerr.Retryable.
	Retryable func(error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Exponential returns a jittered exponential backoff without an elapsed time
// cap; the attempt budget is what bounds the loop.
func Exponential(base, maxDelay time.Duration) backoff.BackOff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay < base {
		maxDelay = base
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.Multiplier = defaultMultiplier
	b.RandomizationFactor = defaultJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or MaxAttempts calls have been made. It returns the number of calls
// made. When the budget is spent the error wraps both
// evalerr.ErrRetriesExhausted and the last error fn returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = Exponential(DefaultBaseDelay, DefaultMaxDelay)
	}
	if p.Retryable == nil {
		p.Retryable = evalerr.Retryable
	}
	p.Backoff.Reset()

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return attempt - 1, fmt.Errorf("retry aborted: %w", last)
		}

		last = fn(ctx, attempt)
		if last == nil {
			return attempt, nil
		}
		if !p.Retryable(last) {
			return attempt, last
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff.NextBackOff()
		if delay == backoff.Stop {
			return attempt, fmt.Errorf("%w after %d attempts: %w", evalerr.ErrRetriesExhausted, attempt, last)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("retry aborted: %w", last)
		}
	}
	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", evalerr.ErrRetriesExhausted, p.MaxAttempts, last)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
