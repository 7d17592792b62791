package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError is fatal for a provider until credentials are refreshed. Never
// retried; surfaced to the operator via the failed run record.
type AuthError struct {
	Provider string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d)", e.Provider, e.Status)
}

// RateLimitError carries the provider's requested wait, when it sent one.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// TransientError wraps network and 5xx failures worth retrying.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedRecordError marks a single unparseable line item. The batch
// continues; only the item is skipped.
type MalformedRecordError struct {
	Provider string
	Index    int
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: malformed record %d: %s", e.Provider, e.Index, e.Reason)
}

// IsRetryable reports whether the retry policy should attempt the call again.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// IsAuth reports whether the error is a credential failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// ErrorKind labels an error for metrics.
func ErrorKind(err error) string {
	var (
		ae *AuthError
		rl *RateLimitError
		tr *TransientError
		mr *MalformedRecordError
	)
	switch {
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &rl):
		return "rate_limit"
	case errors.As(err, &tr):
		return "transient"
	case errors.As(err, &mr):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "other"
	}
}
