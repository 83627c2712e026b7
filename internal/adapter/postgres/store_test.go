package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/LeaseForge/internal/adapter/postgres"
	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	// Run goose migrations first (uses embedded SQL files).
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

var (
	testNow      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	testLandlord = lease.Actor{Role: lease.RoleLandlord}
)

// newTestLease builds a draft lease with unique party ids.
func newTestLease(t *testing.T) *lease.Lease {
	t.Helper()
	landlord := testLandlord
	landlord.ID = "landlord-" + uuid.NewString()[:8]
	l, err := lease.NewLease(landlord, &lease.CreateRequest{
		PropertyID: "prop-" + uuid.NewString()[:8],
		TenantID:   "tenant-" + uuid.NewString()[:8],
		Terms: lease.Terms{
			StartDate:           lease.NewDate(2025, 4, 1),
			EndDate:             lease.NewDate(2026, 3, 31),
			RentAmount:          123456,
			SecurityDeposit:     250000,
			UtilitiesIncluded:   []string{"water"},
			UtilitiesTenantPaid: []string{"gas"},
			Occupants:           []string{"Ana"},
		},
	}, testNow)
	if err != nil {
		t.Fatalf("NewLease: %v", err)
	}
	l.ID = uuid.NewString()
	return l
}

func landlordOf(l *lease.Lease) lease.Actor {
	return lease.Actor{ID: l.LandlordID, Role: lease.RoleLandlord}
}

func tenantOf(l *lease.Lease) lease.Actor {
	return lease.Actor{ID: l.TenantID, Role: lease.RoleTenant}
}

func TestCreateAndGetLease(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	l := newTestLease(t)
	if err := store.CreateLease(ctx, l); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetLease(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RentAmount != 123456 || got.SecurityDeposit != 250000 {
		t.Errorf("money round trip: rent=%s deposit=%s", got.RentAmount, got.SecurityDeposit)
	}
	if got.StartDate != l.StartDate || got.EndDate != l.EndDate {
		t.Errorf("dates: %s..%s", got.StartDate, got.EndDate)
	}
	if got.Status != lease.StatusDraft || got.Version != 1 {
		t.Errorf("status=%s version=%d", got.Status, got.Version)
	}
	if len(got.StatusHistory) != 1 || got.StatusHistory[0].Status != lease.StatusDraft {
		t.Errorf("history = %+v", got.StatusHistory)
	}
	if got.LandlordSignature != nil || got.TenantSignature != nil {
		t.Error("unexpected signatures")
	}
}

func TestGetLeaseNotFound(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		if _, err := store.GetLease(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetLease(%q): got %v, want ErrNotFound", id, err)
		}
		if _, err := store.LeaseVersion(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("LeaseVersion(%q): got %v, want ErrNotFound", id, err)
		}
	}
}

func TestUpdateLeaseAppendsHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	l := newTestLease(t)
	if err := store.CreateLease(ctx, l); err != nil {
		t.Fatal(err)
	}

	prev := len(l.StatusHistory)
	if err := l.Transition(landlordOf(l), lease.StatusSentToTenant, "", testNow); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLease(ctx, l, l.StatusHistory[prev:]); err != nil {
		t.Fatalf("update: %v", err)
	}
	if l.Version != 2 {
		t.Errorf("version = %d, want 2", l.Version)
	}

	prev = len(l.StatusHistory)
	if err := l.Sign(tenantOf(l), lease.PartyTenant, "blob://t", "10.0.0.2", testNow); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLease(ctx, l, l.StatusHistory[prev:]); err != nil {
		t.Fatalf("update after sign: %v", err)
	}

	got, err := store.GetLease(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lease.StatusSignedByTenant || got.Version != 3 {
		t.Fatalf("status=%s version=%d", got.Status, got.Version)
	}
	if v, err := store.LeaseVersion(ctx, l.ID); err != nil || v != 3 {
		t.Errorf("LeaseVersion = %d, %v; want 3", v, err)
	}
	if len(got.StatusHistory) != 3 {
		t.Fatalf("history len = %d", len(got.StatusHistory))
	}
	if got.TenantSignature == nil || got.TenantSignature.SourceIP != "10.0.0.2" {
		t.Errorf("tenant signature = %+v", got.TenantSignature)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Error(err)
	}
}

func TestUpdateLeaseStaleVersion(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	l := newTestLease(t)
	if err := store.CreateLease(ctx, l); err != nil {
		t.Fatal(err)
	}

	a, _ := store.GetLease(ctx, l.ID)
	b, _ := store.GetLease(ctx, l.ID)

	if err := a.Transition(landlordOf(a), lease.StatusSentToTenant, "", testNow); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLease(ctx, a, a.StatusHistory[1:]); err != nil {
		t.Fatal(err)
	}

	if err := b.Transition(landlordOf(b), lease.StatusCancelled, "withdrawn", testNow); err != nil {
		t.Fatal(err)
	}
	err := store.UpdateLease(ctx, b, b.StatusHistory[1:])
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	got, _ := store.GetLease(ctx, l.ID)
	if got.Status != lease.StatusSentToTenant || len(got.StatusHistory) != 2 {
		t.Fatalf("losing write leaked: status=%s history=%d", got.Status, len(got.StatusHistory))
	}
}

func TestUpdateLeaseConcurrentSameVersion(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	l := newTestLease(t)
	if err := store.CreateLease(ctx, l); err != nil {
		t.Fatal(err)
	}

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := l.Clone()
			if err := c.Transition(landlordOf(c), lease.StatusSentToTenant, "", testNow); err != nil {
				t.Error(err)
				return
			}
			err := store.UpdateLease(ctx, c, c.StatusHistory[1:])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestUpdateLeaseNotFound(t *testing.T) {
	store := setupStore(t)
	l := newTestLease(t)
	if err := store.UpdateLease(context.Background(), l, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListLeasesByRoleAndOrder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := newTestLease(t)
	second := newTestLease(t)
	second.LandlordID = first.LandlordID
	second.UpdatedAt = first.UpdatedAt.Add(time.Minute)
	for _, l := range []*lease.Lease{first, second} {
		if err := store.CreateLease(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListLeases(ctx, lease.ListFilter{Role: lease.RoleLandlord, ActorID: first.LandlordID})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("order = %v", ids(got))
	}
	if len(got[0].StatusHistory) != 1 {
		t.Errorf("history not loaded for listed lease")
	}

	got, err = store.ListLeases(ctx, lease.ListFilter{Role: lease.RoleTenant, ActorID: first.TenantID})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("tenant leases = %v", ids(got))
	}

	got, err = store.ListLeases(ctx, lease.ListFilter{Role: lease.RoleLandlord, ActorID: first.LandlordID, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("page 2 = %v", ids(got))
	}
}

func TestListExpirable(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	l := newTestLease(t)
	if err := store.CreateLease(ctx, l); err != nil {
		t.Fatal(err)
	}
	prev := len(l.StatusHistory)
	steps := []error{
		l.Transition(landlordOf(l), lease.StatusSentToTenant, "", testNow),
		l.Sign(tenantOf(l), lease.PartyTenant, "blob://t", "", testNow),
		l.Sign(landlordOf(l), lease.PartyLandlord, "blob://l", "", testNow),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateLease(ctx, l, l.StatusHistory[prev:]); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListExpirable(ctx, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !containsID(got, l.ID) {
		t.Fatalf("executed lease past end date not listed")
	}

	got, err = store.ListExpirable(ctx, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if containsID(got, l.ID) {
		t.Fatalf("lease listed on its end date")
	}
}

func TestMigrationVersion(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatal(err)
	}
	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	if v < 2 {
		t.Fatalf("version = %d, want >= 2", v)
	}
}

func ids(ls []lease.Lease) []string {
	out := make([]string, len(ls))
	for i := range ls {
		out[i] = ls[i].ID
	}
	return out
}

func containsID(ls []lease.Lease, id string) bool {
	for i := range ls {
		if ls[i].ID == id {
			return true
		}
	}
	return false
}
