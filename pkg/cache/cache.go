package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the query-response cache boundary. Values live under structured
// keys ("query:<kind>:<providers>:<hash>") with a per-entry TTL;
// DeleteByPattern drops every answer touching a provider once a fresh batch
// lands, so reads never outlive the source's cache window.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
}
