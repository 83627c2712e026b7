// Package service contains the lease application services: the record store
// front, the transition engine, signatures, change requests, notifications
// and the expiry sweep.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/LeaseForge/internal/adapter/otel"
	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/blobstore"
	"github.com/Strob0t/LeaseForge/internal/port/cache"
	"github.com/Strob0t/LeaseForge/internal/port/database"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

// Listing bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// EventSink receives every committed lease write.
type EventSink interface {
	LeaseChanged(ctx context.Context, ev LeaseEvent)
}

// LeaseEvent describes one committed write. Lease is a snapshot taken after
// the write and must not be mutated.
type LeaseEvent struct {
	Subject     string
	Lease       *lease.Lease
	Actor       lease.Actor
	From        lease.Status
	Reason      string
	Party       lease.Party
	ChangeIndex int
	ChangeText  string
}

// ListRequest is the caller-supplied part of a listing. Role and ActorID are
// only honoured for admins; other actors always list their own leases.
type ListRequest struct {
	Role       string
	ActorID    string
	Status     string
	PropertyID string
	Limit      int
	Offset     int
}

// LeaseService owns every read and write of lease records.
type LeaseService struct {
	store    database.Store
	events   EventSink
	cache    cache.Cache
	cacheTTL time.Duration
	blobs    blobstore.Store
	maxBlob  int64
	metrics  *otel.Metrics
	now      func() time.Time
	newID    func() string
}

// NewLeaseService creates a LeaseService. events may be nil.
func NewLeaseService(store database.Store, events EventSink) *LeaseService {
	return &LeaseService{
		store:  store,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// SetCache enables the read-through lease cache.
func (s *LeaseService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetBlobStore enables signature image uploads of at most maxBytes.
func (s *LeaseService) SetBlobStore(b blobstore.Store, maxBytes int64) {
	s.blobs = b
	s.maxBlob = maxBytes
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *LeaseService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// SetClock overrides the time source.
func (s *LeaseService) SetClock(now func() time.Time) { s.now = now }

// Create builds and stores a new lease on behalf of actor.
func (s *LeaseService) Create(ctx context.Context, actor lease.Actor, req *lease.CreateRequest) (*lease.Lease, error) {
	l, err := lease.NewLease(actor, req, s.now())
	if err != nil {
		return nil, err
	}
	l.ID = s.newID()

	if err := s.store.CreateLease(ctx, l); err != nil {
		return nil, fmt.Errorf("create lease: %w", err)
	}
	slog.InfoContext(ctx, "lease created", "lease_id", l.ID, "status", l.Status, "actor_id", actor.ID)
	s.emit(ctx, LeaseEvent{Subject: messagequeue.SubjectLeaseCreated, Lease: l, Actor: actor})
	return l, nil
}

// Get returns a lease the actor may view.
func (s *LeaseService) Get(ctx context.Context, actor lease.Actor, id string) (*lease.Lease, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.CanView(actor) {
		return nil, fmt.Errorf("get lease %s: %w: not a party to this lease", id, domain.ErrUnauthorized)
	}
	return l, nil
}

// History returns the status history of a lease the actor may view.
func (s *LeaseService) History(ctx context.Context, actor lease.Actor, id string) ([]lease.StatusChange, error) {
	l, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return l.StatusHistory, nil
}

// List returns the leases visible to actor.
func (s *LeaseService) List(ctx context.Context, actor lease.Actor, req ListRequest) ([]lease.Lease, error) {
	filter, err := listFilter(actor, req)
	if err != nil {
		return nil, err
	}
	return s.store.ListLeases(ctx, filter)
}

func listFilter(actor lease.Actor, req ListRequest) (lease.ListFilter, error) {
	f := lease.ListFilter{PropertyID: req.PropertyID, Limit: req.Limit, Offset: req.Offset}

	if req.Status != "" {
		st, err := lease.ParseStatus(req.Status)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	switch {
	case f.Limit == 0:
		f.Limit = DefaultListLimit
	case f.Limit < 0 || f.Limit > MaxListLimit:
		return f, fmt.Errorf("%w: limit must be within 1-%d", domain.ErrValidation, MaxListLimit)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: offset must not be negative", domain.ErrValidation)
	}

	var role lease.Role
	if req.Role != "" {
		r, err := lease.ParseRole(req.Role)
		if err != nil {
			return f, err
		}
		role = r
	}

	switch actor.Role {
	case lease.RoleLandlord, lease.RoleTenant:
		if role != "" && role != actor.Role {
			return f, fmt.Errorf("%w: %s may only list leases as %s", domain.ErrUnauthorized, actor.ID, actor.Role)
		}
		if req.ActorID != "" && req.ActorID != actor.ID {
			return f, fmt.Errorf("%w: cannot list another actor's leases", domain.ErrUnauthorized)
		}
		f.Role, f.ActorID = actor.Role, actor.ID
	case lease.RoleAdmin:
		if role == lease.RoleLandlord || role == lease.RoleTenant {
			if req.ActorID == "" {
				return f, fmt.Errorf("%w: actor is required with role", domain.ErrValidation)
			}
			f.Role, f.ActorID = role, req.ActorID
		}
	default:
		return f, fmt.Errorf("%w: role %q may not list leases", domain.ErrUnauthorized, actor.Role)
	}
	return f, nil
}

// Update patches the lease terms. Only the landlord or an admin may edit,
// and only while the lease is still editable.
func (s *LeaseService) Update(ctx context.Context, actor lease.Actor, id string, req *lease.UpdateRequest) (*lease.Lease, error) {
	l, _, err := s.write(ctx, "update", actor, id, req.ExpectedVersion, func(l *lease.Lease, now time.Time) (bool, error) {
		if err := l.ApplyUpdate(actor, req); err != nil {
			return false, err
		}
		l.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, LeaseEvent{Subject: messagequeue.SubjectLeaseUpdated, Lease: l, Actor: actor})
	return l, nil
}

// mutation changes l in place. It reports false when there is nothing to write.
type mutation func(l *lease.Lease, now time.Time) (bool, error)

// write runs one optimistic read-modify-write cycle. The version check runs
// before any business rule so that every loser of a race sees StaleState.
// It returns the written lease and the status it had before the write.
func (s *LeaseService) write(ctx context.Context, op string, actor lease.Actor, id string, expected int, fn mutation) (_ *lease.Lease, from lease.Status, err error) {
	ctx, span := otel.StartLeaseSpan(ctx, op, id)
	defer func() { otel.EndSpan(span, err) }()

	if expected < 1 {
		return nil, "", fmt.Errorf("%w: expected_version is required", domain.ErrValidation)
	}

	l, err := s.store.GetLease(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("%s lease: %w", op, err)
	}
	if !l.CanView(actor) {
		return nil, "", fmt.Errorf("%s lease %s: %w: not a party to this lease", op, id, domain.ErrUnauthorized)
	}
	if l.Version != expected {
		s.metrics.RecordConflict(ctx, op)
		// The caller read a stale copy, possibly from the cache.
		s.invalidate(ctx, id)
		return nil, "", fmt.Errorf("%s lease %s: expected version %d, current %d: %w", op, id, expected, l.Version, domain.ErrConflict)
	}

	from = l.Status
	prev := len(l.StatusHistory)
	changed, err := fn(l, s.now())
	if err != nil {
		return nil, "", err
	}
	if !changed {
		return l, from, nil
	}

	appended := l.StatusHistory[prev:]
	if err := s.store.UpdateLease(ctx, l, appended); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.RecordConflict(ctx, op)
			s.invalidate(ctx, id)
		}
		return nil, "", fmt.Errorf("%s lease: %w", op, err)
	}
	s.invalidate(ctx, id)
	s.recordTransitions(ctx, from, appended)

	slog.InfoContext(ctx, "lease written",
		"op", op, "lease_id", id, "from", from, "status", l.Status,
		"version", l.Version, "actor_id", actor.ID, "role", actor.Role)
	return l, from, nil
}

func (s *LeaseService) recordTransitions(ctx context.Context, from lease.Status, appended []lease.StatusChange) {
	for _, h := range appended {
		trigger := ""
		if e, ok := lease.FindEdge(from, h.Status); ok {
			trigger = string(e.Trigger)
		}
		s.metrics.RecordTransition(ctx, string(from), string(h.Status), trigger)
		from = h.Status
	}
}

// load reads a lease through the cache.
func (s *LeaseService) load(ctx context.Context, id string) (*lease.Lease, error) {
	key := cache.LeaseKey(id)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var l lease.Lease
			if err := json.Unmarshal(data, &l); err == nil {
				return &l, nil
			}
			slog.WarnContext(ctx, "discarding undecodable cached lease", "lease_id", id)
		}
	}

	l, err := s.store.GetLease(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}
	if s.cache != nil {
		s.fill(ctx, l)
	}
	return l, nil
}

// fill caches l and then re-checks the stored version. A write that commits
// between the read and the Set would otherwise have its invalidation
// overwritten by the older copy. Writers invalidate after committing, so an
// entry that survives the re-check cannot be older than the store.
func (s *LeaseService) fill(ctx context.Context, l *lease.Lease) {
	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.LeaseKey(l.ID), data, s.cacheTTL); err != nil {
		slog.WarnContext(ctx, "lease cache set failed", "lease_id", l.ID, "error", err)
		return
	}
	current, err := s.store.LeaseVersion(ctx, l.ID)
	if err == nil && current == l.Version {
		return
	}
	slog.DebugContext(ctx, "dropping lease cached during a write", "lease_id", l.ID, "cached", l.Version, "current", current)
	s.invalidate(ctx, l.ID)
}

func (s *LeaseService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.LeaseKey(id)); err != nil {
		slog.WarnContext(ctx, "lease cache invalidation failed", "lease_id", id, "error", err)
	}
}

func (s *LeaseService) emit(ctx context.Context, ev LeaseEvent) {
	if s.events == nil {
		return
	}
	ev.Lease = ev.Lease.Clone()
	s.events.LeaseChanged(ctx, ev)
}
