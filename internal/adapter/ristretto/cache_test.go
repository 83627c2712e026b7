package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/LeaseForge/internal/port/cache/cachetest"
)

func TestCacheContract(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	cachetest.Run(t, c)
}

func TestCacheSetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "lease.1", []byte("v1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "lease.1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if err := c.Delete(ctx, "lease.1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "lease.1"); ok {
		t.Fatal("expected miss after delete")
	}
	if r := c.HitRatio(); r <= 0 || r > 1 {
		t.Errorf("hit ratio = %v", r)
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
