package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/LeaseForge/internal/config"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

var afterEnd = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

func TestSweepOnceExpires(t *testing.T) {
	svc, store, sink := newTestService(t)
	ctx := context.Background()
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = executedLease(t, svc).ID
	}
	svc.SetClock(func() time.Time { return afterEnd })

	sw := NewExpirySweeper(store, svc, config.Expiry{Interval: time.Hour, BatchSize: 2, Concurrency: 2})
	sw.now = func() time.Time { return afterEnd }

	res, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Expired != 3 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	for _, id := range ids {
		l, err := store.GetLease(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		assertConsistent(t, l)
		if l.Status != lease.StatusExpired || l.LastChange().ChangedBy != lease.SystemActor.ID {
			t.Fatalf("lease %s: %s by %s", id, l.Status, l.LastChange().ChangedBy)
		}
	}

	subjects := sink.subjects()
	if subjects[len(subjects)-1] != messagequeue.SubjectLeaseExpired {
		t.Errorf("last event = %s", subjects[len(subjects)-1])
	}

	res, err = sw.SweepOnce(ctx)
	if err != nil || res.Expired != 0 {
		t.Fatalf("second sweep = %+v, %v", res, err)
	}
}

func TestSweepOnceSkipsLeasesNotYetEnded(t *testing.T) {
	svc, store, _ := newTestService(t)
	l := executedLease(t, svc)

	sw := NewExpirySweeper(store, svc, config.Expiry{Interval: time.Hour, BatchSize: 10, Concurrency: 1})
	sw.now = func() time.Time { return time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC) }

	res, err := sw.SweepOnce(context.Background())
	if err != nil || res.Expired != 0 {
		t.Fatalf("result = %+v, %v", res, err)
	}
	got, _ := store.GetLease(context.Background(), l.ID)
	if got.Status != lease.StatusFullyExecuted {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestConcurrentSweepsSingleHistoryEntry(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	l := executedLease(t, svc)
	svc.SetClock(func() time.Time { return afterEnd })

	const sweepers = 4
	var wg sync.WaitGroup
	errs := make([]error, sweepers)
	for i := range sweepers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sw := NewExpirySweeper(store, svc, config.Expiry{Interval: time.Hour, BatchSize: 10, Concurrency: 2})
			sw.now = func() time.Time { return afterEnd }
			res, err := sw.SweepOnce(ctx)
			if err == nil && res.Failed > 0 {
				t.Errorf("sweeper %d had %d failures", i, res.Failed)
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("sweeper %d: %v", i, err)
		}
	}
	got, err := store.GetLease(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, h := range got.StatusHistory {
		if h.Status == lease.StatusExpired {
			n++
		}
	}
	if n != 1 || got.Status != lease.StatusExpired {
		t.Fatalf("expired entries = %d, status = %s", n, got.Status)
	}
}

func TestExpiryRunStopsOnCancel(t *testing.T) {
	svc, store, _ := newTestService(t)
	sw := NewExpirySweeper(store, svc, config.Expiry{Interval: time.Millisecond, BatchSize: 10, Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
