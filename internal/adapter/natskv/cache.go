// Package natskv implements the cache port on a NATS JetStream KV bucket.
// It is the L2 lease cache shared by every LeaseForge replica.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// KV is the subset of jetstream.KeyValue the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Purge(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// Cache stores serialized leases in a KV bucket. Entry TTL is set on the
// bucket, so the per-call ttl is ignored.
type Cache struct {
	kv KV
}

// New creates a KV-backed cache.
func New(kv KV) *Cache {
	return &Cache{kv: kv}
}

// Get returns the cached value. A missing or purged key is a miss.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	if !validKey(key) {
		return nil, false, fmt.Errorf("natskv get: invalid key %q", key)
	}
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores value under key.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if !validKey(key) {
		return fmt.Errorf("natskv set: invalid key %q", key)
	}
	if _, err := c.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("natskv set %s: %w", key, err)
	}
	return nil
}

// Delete purges key so no stale revision of the lease survives.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("natskv delete: invalid key %q", key)
	}
	err := c.kv.Purge(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("natskv delete %s: %w", key, err)
	}
	return nil
}

// validKey reports whether key uses only characters JetStream KV accepts.
func validKey(key string) bool {
	if key == "" || key[0] == '.' || key[len(key)-1] == '.' {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '/', r == '=', r == '.':
		default:
			return false
		}
	}
	return true
}
