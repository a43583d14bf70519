package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
)

// Policy bounds retries of one operation. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	// Retryable decides whether err may be retried. Defaults to
	// domain.IsRateLimited.
	Retryable func(err error) bool

	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Jitter returns a value in [0, n). Defaults to math/rand.
	Jitter func(n int64) int64
}

// DefaultPolicy retries throttled calls three times in total, waiting 2s
// plus up to 1s of jitter between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxJitter:   time.Second,
	}
}

// Backoff returns the delay before the next attempt.
func (p Policy) Backoff() time.Duration {
	delay := p.BaseDelay
	if p.MaxJitter > 0 {
		jitter := rand.Int63n
		if p.Jitter != nil {
			jitter = p.Jitter
		}
		delay += time.Duration(jitter(int64(p.MaxJitter)))
	}
	return delay
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Exhaustion wraps domain.ErrExecutionUnavailable.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsRateLimited
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := p.Backoff()
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %v", domain.ErrExecutionUnavailable, attempts, lastErr)
}
