// Package database defines the lease record store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

// Store is the port interface for durable lease storage.
type Store interface {
	// CreateLease inserts a new lease together with its initial history.
	CreateLease(ctx context.Context, l *lease.Lease) error

	// GetLease returns domain.ErrNotFound when no lease has the given id.
	GetLease(ctx context.Context, id string) (*lease.Lease, error)

	// LeaseVersion returns only the stored version of a lease.
	LeaseVersion(ctx context.Context, id string) (int, error)

	// ListLeases returns the leases visible under the filter ordered by
	// updated_at DESC, id DESC.
	ListLeases(ctx context.Context, filter lease.ListFilter) ([]lease.Lease, error)

	// UpdateLease writes l conditionally on l.Version still being the stored
	// version and appends the given history entries in the same transaction.
	// A version mismatch returns domain.ErrConflict. On success l.Version is
	// incremented.
	UpdateLease(ctx context.Context, l *lease.Lease, appended []lease.StatusChange) error

	// ListExpirable returns fully executed leases whose end date is before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]lease.Lease, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
