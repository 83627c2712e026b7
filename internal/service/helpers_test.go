package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/LeaseForge/internal/adapter/memory"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

var (
	testNow  = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	landlord = lease.Actor{ID: "landlord-1", Role: lease.RoleLandlord}
	tenant   = lease.Actor{ID: "tenant-1", Role: lease.RoleTenant}
	admin    = lease.Actor{ID: "admin-1", Role: lease.RoleAdmin}
	stranger = lease.Actor{ID: "tenant-9", Role: lease.RoleTenant}
)

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []LeaseEvent
}

func (r *recordingSink) LeaseChanged(_ context.Context, ev LeaseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Subject
	}
	return out
}

// mapCache is a cache.Cache backed by a map.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestService(t *testing.T) (*LeaseService, *memory.Store, *recordingSink) {
	t.Helper()
	store := memory.NewStore()
	sink := &recordingSink{}
	svc := NewLeaseService(store, sink)
	svc.SetClock(func() time.Time { return testNow })
	return svc, store, sink
}

func createRequest() *lease.CreateRequest {
	return &lease.CreateRequest{
		PropertyID: "prop-1",
		TenantID:   tenant.ID,
		Terms: lease.Terms{
			PropertyTitle: "12 Elm Street",
			LandlordEmail: "landlord@example.com",
			TenantEmail:   "tenant@example.com",
			StartDate:     lease.NewDate(2025, 4, 1),
			EndDate:       lease.NewDate(2026, 3, 31),
			RentAmount:    150000,
		},
	}
}

func mustCreate(t *testing.T, svc *LeaseService) *lease.Lease {
	t.Helper()
	l, err := svc.Create(context.Background(), landlord, createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return l
}

func mustTransition(t *testing.T, svc *LeaseService, actor lease.Actor, l *lease.Lease, to lease.Status, reason string) *lease.Lease {
	t.Helper()
	got, err := svc.ApplyTransition(context.Background(), actor, l.ID, lease.TransitionRequest{
		ToStatus: to, Reason: reason, ExpectedVersion: l.Version,
	})
	if err != nil {
		t.Fatalf("transition %s -> %s: %v", l.Status, to, err)
	}
	assertConsistent(t, got)
	return got
}

func mustSign(t *testing.T, svc *LeaseService, actor lease.Actor, l *lease.Lease) *lease.Lease {
	t.Helper()
	got, err := svc.RecordSignature(context.Background(), actor, l.ID, lease.SignRequest{
		Party: lease.Party(actor.Role), SignatureImageRef: "blob://" + actor.ID, ExpectedVersion: l.Version,
	}, "192.0.2.1")
	if err != nil {
		t.Fatalf("%s sign from %s: %v", actor.Role, l.Status, err)
	}
	assertConsistent(t, got)
	return got
}

// executedLease drives a lease to fully_executed.
func executedLease(t *testing.T, svc *LeaseService) *lease.Lease {
	t.Helper()
	l := mustCreate(t, svc)
	l = mustTransition(t, svc, landlord, l, lease.StatusSentToTenant, "")
	l = mustSign(t, svc, tenant, l)
	l = mustSign(t, svc, landlord, l)
	if l.Status != lease.StatusFullyExecuted {
		t.Fatalf("status = %s, want fully_executed", l.Status)
	}
	return l
}

// assertConsistent checks that the status equals the last history entry and
// every other aggregate invariant holds.
func assertConsistent(t *testing.T, l *lease.Lease) {
	t.Helper()
	if err := l.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func assertErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
