// Package memory provides an in-process implementation of database.Store.
// It backs the service tests and `leaseforge serve --memory` for local demos.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

// Store keeps leases in a map guarded by a mutex. Every read and write
// deep-copies so callers never share state with the store.
type Store struct {
	mu     sync.RWMutex
	leases map[string]*lease.Lease
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{leases: make(map[string]*lease.Lease)}
}

func (s *Store) CreateLease(_ context.Context, l *lease.Lease) error {
	if l.ID == "" {
		return fmt.Errorf("create lease: empty id: %w", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leases[l.ID]; ok {
		return fmt.Errorf("create lease %s: %w", l.ID, domain.ErrConflict)
	}
	s.leases[l.ID] = l.Clone()
	return nil
}

func (s *Store) GetLease(_ context.Context, id string) (*lease.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leases[id]
	if !ok {
		return nil, fmt.Errorf("get lease %s: %w", id, domain.ErrNotFound)
	}
	return l.Clone(), nil
}

func (s *Store) LeaseVersion(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leases[id]
	if !ok {
		return 0, fmt.Errorf("lease version %s: %w", id, domain.ErrNotFound)
	}
	return l.Version, nil
}

func (s *Store) ListLeases(_ context.Context, filter lease.ListFilter) ([]lease.Lease, error) {
	s.mu.RLock()
	out := make([]lease.Lease, 0, len(s.leases))
	for _, l := range s.leases {
		if matches(l, &filter) {
			out = append(out, *l.Clone())
		}
	}
	s.mu.RUnlock()

	sortRecent(out)
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateLease(_ context.Context, l *lease.Lease, _ []lease.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[l.ID]
	if !ok {
		return fmt.Errorf("update lease %s: %w", l.ID, domain.ErrNotFound)
	}
	if cur.Version != l.Version {
		return fmt.Errorf("update lease %s at version %d: %w", l.ID, l.Version, domain.ErrConflict)
	}
	if err := l.CheckInvariants(); err != nil {
		return fmt.Errorf("update lease %s: %w: %v", l.ID, domain.ErrValidation, err)
	}

	l.Version++
	s.leases[l.ID] = l.Clone()
	return nil
}

func (s *Store) ListExpirable(_ context.Context, now time.Time, limit int) ([]lease.Lease, error) {
	today := lease.DateOf(now)

	s.mu.RLock()
	var out []lease.Lease
	for _, l := range s.leases {
		if l.Status == lease.StatusFullyExecuted && l.EndDate.Before(today) {
			out = append(out, *l.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b lease.Lease) int {
		if c := a.EndDate.Time.Compare(b.EndDate.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return page(out, limit, 0), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func matches(l *lease.Lease, f *lease.ListFilter) bool {
	switch f.Role {
	case lease.RoleLandlord:
		if l.LandlordID != f.ActorID {
			return false
		}
	case lease.RoleTenant:
		if l.TenantID != f.ActorID {
			return false
		}
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.PropertyID != "" && l.PropertyID != f.PropertyID {
		return false
	}
	return true
}

// sortRecent orders leases by updated_at DESC, id DESC.
func sortRecent(ls []lease.Lease) {
	slices.SortFunc(ls, func(a, b lease.Lease) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func page(ls []lease.Lease, limit, offset int) []lease.Lease {
	if offset >= len(ls) {
		return []lease.Lease{}
	}
	ls = ls[offset:]
	if limit > 0 && limit < len(ls) {
		ls = ls[:limit]
	}
	return ls
}
