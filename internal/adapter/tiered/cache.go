// Package tiered implements the two-level lease read cache: an in-process L1
// in front of a shared L2.
package tiered

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/LeaseForge/internal/port/cache"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

// Listener delivers published messages to every replica, not just one.
type Listener interface {
	Listen(subject string, handler messagequeue.Handler) (stop func(), err error)
}

// Cache combines an L1 (in-process) and an optional L2 (shared) cache.
// Get checks L1 first, then L2, backfilling L1 on an L2 hit. L2 failures
// degrade to a miss since the store stays the source of truth.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. l2 may be nil for single-replica deployments.
// l1Expire bounds how long L1 entries live, including L2 backfills.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found || c.l2 == nil {
		return val, found, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
	}
	return val, found, nil
}

// Set writes to both levels. L1 uses the shorter of ttl and l1Expire.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := ttl
	if c.l1Expire > 0 && (l1TTL <= 0 || c.l1Expire < l1TTL) {
		l1TTL = c.l1Expire
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "l2 cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes from L2 before L1 so a concurrent Get cannot backfill L1
// with the entry being invalidated.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			return err
		}
	}
	return c.l1.Delete(ctx, key)
}

// Follow drops the L1 entry of every lease another replica writes. A writer
// only clears its own L1, so without this a replica keeps serving its copy
// until l1Expire.
func (c *Cache) Follow(l Listener) (stop func(), err error) {
	return l.Listen(messagequeue.SubjectLeaseAll, func(ctx context.Context, subject string, data []byte) error {
		var ev messagequeue.LeaseEventPayload
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", subject, err)
		}
		if ev.LeaseID == "" {
			return nil
		}
		return c.l1.Delete(ctx, cache.LeaseKey(ev.LeaseID))
	})
}
