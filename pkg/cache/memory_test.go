package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string
	Count int
}

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	want := payload{Name: "aws", Count: 3}
	if err := mc.Set(ctx, "k", want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	var wrong int
	if err := mc.Get(ctx, "k", &wrong); err == nil {
		t.Error("Get() into mismatched type succeeded, want error")
	}
}

func TestMemoryCache_ExpiredEntriesMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	var got string
	if err := mc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after TTL error = %v, want ErrCacheMiss", err)
	}
	if ok, _ := mc.Exists(ctx, "k"); ok {
		t.Error("Exists() after TTL = true, want false")
	}
}

func TestMemoryCache_DeleteByPatternFlushes(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "query:summary:aws:x", "a", time.Minute)
	_ = mc.Set(ctx, "query:forecast:gcp:y", "b", time.Minute)
	if err := mc.DeleteByPattern(ctx, "query:*aws*"); err != nil {
		t.Fatalf("DeleteByPattern() error = %v", err)
	}

	var got string
	if err := mc.Get(ctx, "query:summary:aws:x", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("matching key survived the flush: err = %v", err)
	}
}
