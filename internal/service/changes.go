package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

// RequestChange records a tenant's proposed edit and moves the lease to
// changes_requested in the same write.
func (s *LeaseService) RequestChange(ctx context.Context, actor lease.Actor, id string, req lease.ChangeRequest) (*lease.Lease, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: change text is required", domain.ErrValidation)
	}
	if actor.Role != lease.RoleTenant {
		return nil, fmt.Errorf("%w: only the tenant may request changes", domain.ErrUnauthorized)
	}
	return s.ApplyTransition(ctx, actor, id, lease.TransitionRequest{
		ToStatus:        lease.StatusChangesRequested,
		Reason:          req.Text,
		ExpectedVersion: req.ExpectedVersion,
	})
}

// ResolveChange marks one change request as resolved without changing the
// status. Resolving an already resolved entry is a no-op that writes nothing.
func (s *LeaseService) ResolveChange(ctx context.Context, actor lease.Actor, id string, index, expectedVersion int) (*lease.Lease, error) {
	var resolved bool
	l, _, err := s.write(ctx, "resolve_change", actor, id, expectedVersion, func(l *lease.Lease, now time.Time) (bool, error) {
		changed, err := l.ResolveChange(actor, index, now)
		if err != nil {
			return false, err
		}
		if changed {
			l.UpdatedAt = now
		}
		resolved = changed
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if resolved {
		s.emit(ctx, LeaseEvent{
			Subject:     messagequeue.SubjectLeaseChangeResolved,
			Lease:       l,
			Actor:       actor,
			From:        l.Status,
			ChangeIndex: index,
			ChangeText:  l.RequestedChanges[index].Text,
		})
	}
	return l, nil
}
