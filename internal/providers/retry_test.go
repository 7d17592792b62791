package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	p := NewRetryPolicy(4, time.Millisecond, 0)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &TransientError{Provider: "aws", Err: errors.New("503")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_NeverRetriesAuthError(t *testing.T) {
	p := NewRetryPolicy(5, time.Millisecond, 0)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &AuthError{Provider: "azure", Status: 401}
	})
	if !IsAuth(err) {
		t.Fatalf("Do() error = %v, want AuthError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (auth errors must not retry)", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond, 0)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &TransientError{Provider: "gcp", Err: errors.New("reset")}
	})
	if err == nil {
		t.Fatal("Do() error = nil, want last transient error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_HonorsRetryAfter(t *testing.T) {
	p := NewRetryPolicy(2, time.Millisecond, 0)
	retryAfter := 50 * time.Millisecond
	calls := 0
	start := time.Now()
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{Provider: "aws", RetryAfter: retryAfter}
		}
		return nil
	})
	if elapsed := time.Since(start); elapsed < retryAfter {
		t.Errorf("waited %s before retry, want at least %s", elapsed, retryAfter)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryPolicy_ContextCancelStopsWaiting(t *testing.T) {
	p := NewRetryPolicy(3, time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func(ctx context.Context) error {
		return &TransientError{Provider: "aws", Err: errors.New("reset")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", &AuthError{Provider: "aws", Status: 403}, "auth"},
		{"rate limit", &RateLimitError{Provider: "aws"}, "rate_limit"},
		{"transient", &TransientError{Provider: "aws", Err: errors.New("x")}, "transient"},
		{"malformed", &MalformedRecordError{Provider: "aws", Index: 2, Reason: "bad date"}, "malformed"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"wrapped transient", context.DeadlineExceeded, "timeout"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
