package providers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
)

// apiBase centralizes what every adapter does the same way: client
// construction, token-bucket admission, retry, and translation of HTTP
// failures into the provider error taxonomy.
type apiBase struct {
	name    string
	cfg     config.ProviderConfig
	client  *xhttp.Client
	retry   *RetryPolicy
	limiter *Limiter
}

func newAPIBase(name string, cfg config.ProviderConfig, retry *RetryPolicy, limiter *Limiter) apiBase {
	return apiBase{
		name:    name,
		cfg:     cfg,
		client:  xhttp.NewClient(xhttp.WithTimeout(30 * time.Second)),
		retry:   retry,
		limiter: limiter,
	}
}

// call performs one JSON API call with rate limiting, retry, and taxonomy
// translation. dest may be nil for fire-and-forget calls.
func (b *apiBase) call(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	return b.retry.Do(ctx, func(ctx context.Context) error {
		if !b.limiter.Allow(b.name, b.cfg.RateCapacity, b.cfg.RateRefillPerSec) {
			return &RateLimitError{Provider: b.name, RetryAfter: time.Second}
		}
		err := b.client.SendAndParse(ctx, opts, dest)
		if err != nil {
			return b.translate(err)
		}
		return nil
	})
}

// translate maps transport failures onto the taxonomy. Anything without an
// HTTP status (DNS, connect, timeout) counts as transient.
func (b *apiBase) translate(err error) error {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return &TransientError{Provider: b.name, Err: err}
	}
	switch {
	case se.Code == 401 || se.Code == 403:
		return &AuthError{Provider: b.name, Status: se.Code}
	case se.Code == 429:
		return &RateLimitError{Provider: b.name, RetryAfter: retryAfter(se)}
	case se.Code >= 500:
		return &TransientError{Provider: b.name, Err: se}
	default:
		return err
	}
}

func retryAfter(se *xhttp.StatusError) time.Duration {
	if se.RetryAfter == "" {
		return 0
	}
	if secs, err := strconv.Atoi(se.RetryAfter); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
