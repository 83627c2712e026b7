package natskv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/LeaseForge/internal/port/cache/cachetest"
)

type mockKV struct {
	data   map[string][]byte
	getErr error
}

type mockEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e mockEntry) Value() []byte { return e.value }

func (m *mockKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return mockEntry{value: v}, nil
}

func (m *mockKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.data[key] = value
	return uint64(len(m.data)), nil
}

func (m *mockKV) Purge(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	delete(m.data, key)
	return nil
}

func TestCacheContract(t *testing.T) {
	cachetest.Run(t, New(&mockKV{data: map[string][]byte{}}))
}

func TestCacheRoundTrip(t *testing.T) {
	kv := &mockKV{data: map[string][]byte{}}
	c := New(kv)
	ctx := context.Background()

	if err := c.Set(ctx, "lease.abc-1", []byte(`{"id":"abc-1"}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "lease.abc-1")
	if err != nil || !ok || string(got) != `{"id":"abc-1"}` {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if err := c.Delete(ctx, "lease.abc-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(ctx, "lease.abc-1"); ok || err != nil {
		t.Fatalf("after delete: ok=%v err=%v", ok, err)
	}
}

func TestCacheDeletedKeyIsMiss(t *testing.T) {
	c := New(&mockKV{data: map[string][]byte{}, getErr: jetstream.ErrKeyDeleted})
	if _, ok, err := c.Get(context.Background(), "lease.x"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestCacheGetError(t *testing.T) {
	boom := errors.New("boom")
	c := New(&mockKV{data: map[string][]byte{}, getErr: boom})
	if _, _, err := c.Get(context.Background(), "lease.x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"lease.0b6f5c1e-8d2a-4c53-9d3b-2f3c1a7e9f10", true},
		{"idem.abc123", true},
		{"", false},
		{".lease", false},
		{"lease.", false},
		{"lease id", false},
		{"lease*", false},
	}
	for _, tt := range tests {
		if got := validKey(tt.key); got != tt.want {
			t.Errorf("validKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}

	c := New(&mockKV{data: map[string][]byte{}})
	if err := c.Set(context.Background(), "bad key", nil, 0); err == nil {
		t.Error("expected error for invalid key")
	}
}
