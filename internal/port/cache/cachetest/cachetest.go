// Package cachetest holds the behaviour every cache.Cache used in front of
// the lease store must share.
package cachetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Strob0t/LeaseForge/internal/port/cache"
)

// Run exercises c with serialized-lease sized values under lease keys.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	doc := bytes.Repeat([]byte(`{"status":"draft"}`), 64)

	t.Run("StoredLeaseIsReturned", func(t *testing.T) {
		k := cache.LeaseKey("ct-stored")
		if err := c.Set(ctx, k, doc, time.Minute); err != nil {
			t.Fatal(err)
		}
		got, ok, err := c.Get(ctx, k)
		if err != nil || !ok {
			t.Fatalf("Get = ok %v, err %v", ok, err)
		}
		if !bytes.Equal(got, doc) {
			t.Fatalf("value changed in cache: %d bytes", len(got))
		}
	})

	t.Run("UnknownLeaseIsMiss", func(t *testing.T) {
		_, ok, err := c.Get(ctx, cache.LeaseKey("ct-unknown"))
		if err != nil || ok {
			t.Fatalf("Get = ok %v, err %v", ok, err)
		}
	})

	t.Run("InvalidateAfterWrite", func(t *testing.T) {
		k := cache.LeaseKey("ct-invalidate")
		_ = c.Set(ctx, k, doc, time.Minute)
		if err := c.Delete(ctx, k); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := c.Get(ctx, k); ok {
			t.Fatal("stale lease served after invalidation")
		}
		// Invalidating a lease that was never cached is routine.
		if err := c.Delete(ctx, cache.LeaseKey("ct-never")); err != nil {
			t.Fatalf("Delete of uncached key: %v", err)
		}
	})

	t.Run("NewerVersionReplaces", func(t *testing.T) {
		k := cache.LeaseKey("ct-version")
		_ = c.Set(ctx, k, []byte(`{"version":1}`), time.Minute)
		_ = c.Set(ctx, k, []byte(`{"version":2}`), time.Minute)
		got, ok, _ := c.Get(ctx, k)
		if !ok || string(got) != `{"version":2}` {
			t.Fatalf("Get = %q, %v", got, ok)
		}
	})
}
