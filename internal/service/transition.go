package service

import (
	"context"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

// ApplyTransition moves a lease along a command edge of the state machine.
// Signature and derived edges are rejected; see RecordSignature.
func (s *LeaseService) ApplyTransition(ctx context.Context, actor lease.Actor, id string, req lease.TransitionRequest) (*lease.Lease, error) {
	to, err := lease.ParseStatus(string(req.ToStatus))
	if err != nil {
		return nil, err
	}

	l, from, err := s.write(ctx, "transition", actor, id, req.ExpectedVersion, func(l *lease.Lease, now time.Time) (bool, error) {
		return true, l.Transition(actor, to, req.Reason, now)
	})
	if err != nil {
		return nil, err
	}

	ev := LeaseEvent{Subject: messagequeue.SubjectLeaseTransitioned, Lease: l, Actor: actor, From: from, Reason: req.Reason}
	switch to {
	case lease.StatusChangesRequested:
		ev.Subject = messagequeue.SubjectLeaseChangeRequested
		ev.ChangeIndex = len(l.RequestedChanges) - 1
		ev.ChangeText = l.RequestedChanges[ev.ChangeIndex].Text
		s.metrics.RecordChangeRequest(ctx)
	case lease.StatusExpired:
		ev.Subject = messagequeue.SubjectLeaseExpired
	}
	s.emit(ctx, ev)
	return l, nil
}

// Expire moves a fully executed lease past its end date to expired on
// behalf of the system. expectedVersion is the version the caller listed.
func (s *LeaseService) Expire(ctx context.Context, id string, expectedVersion int) (*lease.Lease, error) {
	return s.ApplyTransition(ctx, lease.SystemActor, id, lease.TransitionRequest{
		ToStatus:        lease.StatusExpired,
		ExpectedVersion: expectedVersion,
	})
}
