package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/Strob0t/LeaseForge/internal/adapter/otel"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/broadcast"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
	"github.com/Strob0t/LeaseForge/internal/port/notifier"
	"github.com/Strob0t/LeaseForge/internal/resilience"
)

// NotificationService fans a committed lease write out to the websocket hub,
// the message queue and every registered notifier. Delivery runs in the
// background; failures are logged and counted, never returned.
type NotificationService struct {
	hub       broadcast.Broadcaster
	queue     messagequeue.Queue
	notifiers []notifier.Notifier
	breakers  map[string]*resilience.Breaker
	metrics   *otel.Metrics
	wg        sync.WaitGroup
}

// NewNotificationService creates a NotificationService. hub and queue may be nil.
func NewNotificationService(hub broadcast.Broadcaster, queue messagequeue.Queue, notifiers []notifier.Notifier) *NotificationService {
	return &NotificationService{
		hub:       hub,
		queue:     queue,
		notifiers: notifiers,
		breakers:  make(map[string]*resilience.Breaker),
	}
}

// SetBreaker guards the named notifier with a circuit breaker.
func (s *NotificationService) SetBreaker(name string, b *resilience.Breaker) {
	s.breakers[name] = b
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *NotificationService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}

// LeaseChanged dispatches ev without blocking the caller.
func (s *NotificationService) LeaseChanged(ctx context.Context, ev LeaseEvent) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx, ev)
	}()
}

// Wait blocks until every dispatched event has been delivered or dropped.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) dispatch(ctx context.Context, ev LeaseEvent) {
	l := ev.Lease

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, broadcast.EventLeaseStatus, broadcast.LeaseStatusEvent{
			LeaseID:    l.ID,
			PropertyID: l.PropertyID,
			LandlordID: l.LandlordID,
			TenantID:   l.TenantID,
			Status:     string(l.Status),
			Version:    l.Version,
			ChangedBy:  ev.Actor.ID,
		})
	}

	if s.queue != nil {
		if err := s.publish(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "lease event publish failed", "subject", ev.Subject, "lease_id", l.ID, "error", err)
		}
	}

	s.notify(ctx, ev)
}

func (s *NotificationService) publish(ctx context.Context, ev LeaseEvent) error {
	data, err := json.Marshal(eventPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Subject, err)
	}
	return s.queue.Publish(ctx, ev.Subject, data)
}

func eventPayload(ev LeaseEvent) any {
	l := ev.Lease
	base := messagequeue.LeaseEventPayload{
		LeaseID:    l.ID,
		PropertyID: l.PropertyID,
		LandlordID: l.LandlordID,
		TenantID:   l.TenantID,
		From:       string(ev.From),
		Status:     string(l.Status),
		Version:    l.Version,
		ActorID:    ev.Actor.ID,
		ActorRole:  string(ev.Actor.Role),
		Reason:     ev.Reason,
		OccurredAt: l.UpdatedAt,
	}
	switch ev.Subject {
	case messagequeue.SubjectLeaseSigned:
		p := messagequeue.SignaturePayload{LeaseEventPayload: base, Party: string(ev.Party)}
		if sig := signatureOf(l, ev.Party); sig != nil {
			p.SignatureImageRef = sig.SignatureImageRef
		}
		return p
	case messagequeue.SubjectLeaseChangeRequested, messagequeue.SubjectLeaseChangeResolved:
		return messagequeue.ChangeRequestPayload{LeaseEventPayload: base, Index: ev.ChangeIndex, Text: ev.ChangeText}
	}
	return base
}

func signatureOf(l *lease.Lease, p lease.Party) *lease.Signature {
	if p == lease.PartyLandlord {
		return l.LandlordSignature
	}
	return l.TenantSignature
}

func (s *NotificationService) notify(ctx context.Context, ev LeaseEvent) {
	if len(s.notifiers) == 0 {
		return
	}
	n, ok := buildNotification(ev)
	if !ok {
		return
	}
	recipients := recipientsFor(ev)

	for _, provider := range s.notifiers {
		if !provider.Capabilities().DirectMessages {
			s.send(ctx, provider, n, ev.Lease.ID)
			continue
		}
		for _, to := range recipients {
			direct := n
			direct.To = to
			s.send(ctx, provider, direct, ev.Lease.ID)
		}
	}
}

func (s *NotificationService) send(ctx context.Context, provider notifier.Notifier, n notifier.Notification, leaseID string) {
	ctx, span := otel.StartNotifySpan(ctx, provider.Name(), leaseID)
	var err error
	if b := s.breakers[provider.Name()]; b != nil {
		err = b.Do(ctx, func(ctx context.Context) error { return provider.Send(ctx, n) })
	} else {
		err = provider.Send(ctx, n)
	}
	otel.EndSpan(span, err)

	switch {
	case err == nil:
		slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "template", n.Template, "lease_id", leaseID)
	case errors.Is(err, notifier.ErrNotConfigured), errors.Is(err, notifier.ErrNoRecipient):
		slog.DebugContext(ctx, "notification skipped", "provider", provider.Name(), "reason", err)
	default:
		s.metrics.RecordNotificationFailure(ctx, provider.Name())
		slog.WarnContext(ctx, "notification send failed",
			"provider", provider.Name(),
			"template", n.Template,
			"lease_id", leaseID,
			"error", err,
		)
	}
}

// recipientsFor returns the e-mail addresses to notify: the counterparty of
// the acting party, or both parties for system and admin writes and for
// lifecycle endings.
func recipientsFor(ev LeaseEvent) []string {
	l := ev.Lease
	var parties []lease.Party
	switch {
	case ev.Actor.Role == lease.RoleSystem, ev.Actor.Role == lease.RoleAdmin,
		l.Status == lease.StatusFullyExecuted, l.Status == lease.StatusCancelled:
		parties = []lease.Party{lease.PartyLandlord, lease.PartyTenant}
	default:
		parties = []lease.Party{l.Counterparty(ev.Actor)}
	}

	out := make([]string, 0, len(parties))
	for _, p := range parties {
		if addr := l.ContactEmail(p); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// buildNotification renders the message for ev. Term edits by the landlord
// before the lease is sent are not worth a notification.
func buildNotification(ev LeaseEvent) (notifier.Notification, bool) {
	l := ev.Lease
	property := l.PropertyTitle
	if property == "" {
		property = l.PropertyID
	}

	n := notifier.Notification{
		Template: "lease." + string(l.Status),
		Data: map[string]string{
			"lease_id": l.ID,
			"property": property,
			"status":   string(l.Status),
			"version":  strconv.Itoa(l.Version),
			"actor":    ev.Actor.ID,
		},
	}

	switch ev.Subject {
	case messagequeue.SubjectLeaseCreated:
		if l.Status != lease.StatusPendingRequest {
			return n, false
		}
		n.Template = "lease.requested"
		n.Title = "New lease request"
		n.Message = fmt.Sprintf("A tenant requested a lease for %s.", property)
		return n, true
	case messagequeue.SubjectLeaseUpdated:
		return n, false
	case messagequeue.SubjectLeaseChangeResolved:
		n.Template = "lease.change_resolved"
		n.Title = "Change request resolved"
		n.Message = fmt.Sprintf("The landlord resolved your request: %q", ev.ChangeText)
		return n, true
	}

	switch l.Status {
	case lease.StatusDraft:
		if ev.From == lease.StatusChangesRequested {
			n.Title = "Lease revised"
			n.Message = fmt.Sprintf("The landlord is revising the lease for %s.", property)
		} else {
			n.Title = "Lease request approved"
			n.Message = fmt.Sprintf("Your lease request for %s was approved and is being drafted.", property)
		}
	case lease.StatusSentToTenant:
		n.Title = "Lease ready for review"
		n.Message = fmt.Sprintf("The lease for %s is waiting for your review and signature.", property)
	case lease.StatusChangesRequested:
		n.Title = "Changes requested"
		n.Message = fmt.Sprintf("The tenant requested changes to the lease for %s: %q", property, ev.ChangeText)
	case lease.StatusSentToLandlord:
		n.Title = "Tenant approved the lease"
		n.Message = fmt.Sprintf("The tenant approved the lease for %s. It is ready for your signature.", property)
	case lease.StatusSignedByLandlord, lease.StatusSignedByTenant:
		n.Template = "lease.signed"
		n.Title = fmt.Sprintf("Lease signed by %s", ev.Party)
		n.Message = fmt.Sprintf("The %s signed the lease for %s.", ev.Party, property)
	case lease.StatusFullyExecuted:
		n.Title = "Lease fully executed"
		n.Message = fmt.Sprintf("Both parties signed the lease for %s.", property)
	case lease.StatusCancelled:
		n.Title = "Lease cancelled"
		n.Message = fmt.Sprintf("The lease for %s was cancelled: %s", property, ev.Reason)
	case lease.StatusExpired:
		n.Title = "Lease expired"
		n.Message = fmt.Sprintf("The lease for %s ended on %s.", property, l.EndDate)
	default:
		return n, false
	}
	return n, true
}
