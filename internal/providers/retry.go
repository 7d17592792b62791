package providers

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy is the single retry/backoff implementation shared by all
// adapters: exponential backoff with jitter, bounded attempts. AuthError is
// never retried; RateLimitError waits at least the provider's Retry-After.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	JitterFraction float64
}

// NewRetryPolicy builds a policy, applying sane floors.
func NewRetryPolicy(maxAttempts int, base time.Duration, jitter float64) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if jitter < 0 || jitter > 1 {
		jitter = 0.2
	}
	return &RetryPolicy{MaxAttempts: maxAttempts, BackoffBase: base, JitterFraction: jitter}
}

// Do runs fn with retries. Returns the last error once attempts are
// exhausted or a non-retryable error occurs.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.backoff(attempt)
		var rl *RateLimitError
		if errors.As(lastErr, &rl) && rl.RetryAfter > wait {
			wait = rl.RetryAfter
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// backoff is base * 2^(attempt-1) plus up to JitterFraction of itself.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BackoffBase << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(float64(d)*p.JitterFraction) + 1))
	return d + jitter
}
