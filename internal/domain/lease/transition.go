package lease

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain"
)

// Trigger describes how an edge of the state machine is taken.
type Trigger string

const (
	// TriggerCommand edges are requested through ApplyTransition.
	TriggerCommand Trigger = "command"
	// TriggerSignature edges are taken by recording a signature.
	TriggerSignature Trigger = "signature"
	// TriggerDerived edges are computed by the engine and never requested.
	TriggerDerived Trigger = "derived"
	// TriggerSystem edges are taken by scheduled jobs.
	TriggerSystem Trigger = "system"
)

// Edge is one legal transition together with the roles allowed to take it.
type Edge struct {
	From    Status
	To      Status
	Roles   []Role
	Trigger Trigger
}

// Allows reports whether the role may take this edge.
func (e Edge) Allows(r Role) bool { return slices.Contains(e.Roles, r) }

var (
	landlordOnly = []Role{RoleLandlord}
	tenantOnly   = []Role{RoleTenant}
	systemOnly   = []Role{RoleSystem}
	cancellers   = []Role{RoleLandlord, RoleTenant, RoleAdmin}
)

// Transitions is the complete adjacency table of the lease state machine.
var Transitions = buildTransitions()

func buildTransitions() []Edge {
	edges := []Edge{
		{StatusPendingRequest, StatusDraft, landlordOnly, TriggerCommand},
		{StatusDraft, StatusSentToTenant, landlordOnly, TriggerCommand},
		{StatusDraft, StatusSignedByLandlord, landlordOnly, TriggerSignature},
		{StatusSignedByLandlord, StatusSentToTenant, landlordOnly, TriggerCommand},
		{StatusSentToTenant, StatusChangesRequested, tenantOnly, TriggerCommand},
		{StatusSentToTenant, StatusSignedByTenant, tenantOnly, TriggerSignature},
		{StatusSentToTenant, StatusSentToLandlord, tenantOnly, TriggerCommand},
		{StatusChangesRequested, StatusDraft, landlordOnly, TriggerCommand},
		{StatusSentToLandlord, StatusSignedByLandlord, landlordOnly, TriggerSignature},
		{StatusSignedByTenant, StatusSignedByLandlord, landlordOnly, TriggerSignature},
		{StatusSignedByLandlord, StatusSignedByTenant, tenantOnly, TriggerSignature},
		{StatusSignedByLandlord, StatusFullyExecuted, systemOnly, TriggerDerived},
		{StatusSignedByTenant, StatusFullyExecuted, systemOnly, TriggerDerived},
		{StatusFullyExecuted, StatusExpired, systemOnly, TriggerSystem},
	}
	for _, s := range AllStatuses {
		if !s.Terminal() {
			edges = append(edges, Edge{s, StatusCancelled, cancellers, TriggerCommand})
		}
	}
	return edges
}

// FindEdge returns the edge from -> to, if one exists.
func FindEdge(from, to Status) (Edge, bool) {
	for _, e := range Transitions {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Editable reports whether the lease terms may still be changed by the landlord.
func (s Status) Editable() bool {
	return s == StatusPendingRequest || s == StatusDraft || s == StatusChangesRequested
}

// Transition applies a command edge on behalf of actor. reason is required
// for cancellations and is used as the change text when entering
// changes_requested. On error the lease is left unchanged.
func (l *Lease) Transition(actor Actor, to Status, reason string, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, to)
	}
	edge, ok := FindEdge(l.Status, to)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, l.Status, to)
	}

	switch edge.Trigger {
	case TriggerDerived:
		return fmt.Errorf("%w: %s is reached automatically once both parties have signed", domain.ErrIllegalTransition, to)
	case TriggerSignature:
		return fmt.Errorf("%w: %s requires a recorded signature", domain.ErrPreconditionFailed, to)
	case TriggerSystem:
		if actor.Role != RoleSystem {
			return fmt.Errorf("%w: %s -> %s is performed by the system", domain.ErrUnauthorized, l.Status, to)
		}
	}
	if err := l.authorize(actor, edge); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	switch {
	case to == StatusCancelled:
		if reason == "" {
			return fmt.Errorf("%w: reason is required to cancel", domain.ErrValidation)
		}

	case to == StatusChangesRequested:
		if reason == "" {
			return fmt.Errorf("%w: change text is required", domain.ErrValidation)
		}
		l.RequestedChanges = append(l.RequestedChanges, RequestedChange{
			Text:        reason,
			RequestedAt: now,
			RequestedBy: actor.ID,
		})

	case l.Status == StatusChangesRequested && to == StatusDraft:
		if l.UnresolvedChanges() == 0 {
			return fmt.Errorf("%w: no unresolved change requests", domain.ErrPreconditionFailed)
		}
		l.resolveAll(now)
		// The terms are about to change, so an earlier landlord signature no longer applies.
		l.LandlordSignature = nil

	case l.Status == StatusSignedByLandlord && to == StatusSentToTenant:
		if l.TenantSignature != nil {
			return fmt.Errorf("%w: tenant has already signed", domain.ErrPreconditionFailed)
		}

	case to == StatusExpired:
		if !l.EndDate.Before(DateOf(now)) {
			return fmt.Errorf("%w: lease ends on %s", domain.ErrPreconditionFailed, l.EndDate)
		}
	}

	l.appendStatus(to, actor, reason, now)
	return nil
}

// Sign records the party's attestation and, when both signatures are present
// and no change request is open, derives fully_executed. On error the lease
// is left unchanged.
func (l *Lease) Sign(actor Actor, party Party, imageRef, sourceIP string, now time.Time) error {
	if party != PartyLandlord && party != PartyTenant {
		return fmt.Errorf("%w: party must be landlord or tenant", domain.ErrValidation)
	}
	if strings.TrimSpace(imageRef) == "" {
		return fmt.Errorf("%w: signature_image_ref is required", domain.ErrValidation)
	}
	if string(actor.Role) != string(party) || !l.IsParty(actor) {
		return fmt.Errorf("%w: only the %s may sign as %s", domain.ErrUnauthorized, party, party)
	}
	if l.HasSigned(party) {
		return fmt.Errorf("%w: %s signed at %s", domain.ErrAlreadySigned, party, l.signature(party).SignedAt.Format(time.RFC3339))
	}

	to := SignedStatus(party)
	edge, ok := FindEdge(l.Status, to)
	if !ok || edge.Trigger != TriggerSignature {
		return fmt.Errorf("%w: %s cannot sign while lease is %s", domain.ErrIllegalTransition, party, l.Status)
	}

	sig := &Signature{SignedAt: now, SignatureImageRef: imageRef, SourceIP: sourceIP}
	if party == PartyLandlord {
		l.LandlordSignature = sig
	} else {
		l.TenantSignature = sig
	}
	l.appendStatus(to, actor, "", now)
	l.deriveExecution(now)
	return nil
}

// ResolveChange marks the change at index as resolved without touching the
// status. It reports whether anything changed.
func (l *Lease) ResolveChange(actor Actor, index int, now time.Time) (bool, error) {
	if actor.Role != RoleAdmin && !(actor.Role == RoleLandlord && l.IsParty(actor)) {
		return false, fmt.Errorf("%w: only the landlord may resolve change requests", domain.ErrUnauthorized)
	}
	if l.Status.Terminal() {
		return false, fmt.Errorf("%w: lease is %s", domain.ErrPreconditionFailed, l.Status)
	}
	if index < 0 || index >= len(l.RequestedChanges) {
		return false, fmt.Errorf("%w: change index %d out of range", domain.ErrValidation, index)
	}
	rc := &l.RequestedChanges[index]
	if rc.Resolved {
		return false, nil
	}
	rc.Resolved = true
	rc.ResolvedAt = &now
	return true, nil
}

// Expire moves a fully executed lease whose end date has passed to expired.
func (l *Lease) Expire(now time.Time) error {
	return l.Transition(SystemActor, StatusExpired, "", now)
}

// ApplyUpdate patches the lease terms on behalf of actor and re-validates them.
func (l *Lease) ApplyUpdate(actor Actor, req *UpdateRequest) error {
	if actor.Role != RoleAdmin && !(actor.Role == RoleLandlord && l.IsParty(actor)) {
		return fmt.Errorf("%w: only the landlord may edit lease terms", domain.ErrUnauthorized)
	}
	if !l.Status.Editable() {
		return fmt.Errorf("%w: lease terms are locked while %s", domain.ErrPreconditionFailed, l.Status)
	}
	t := l.Terms
	req.applyTo(&t)
	t.normalize()
	if err := t.Validate(); err != nil {
		return err
	}
	l.Terms = t
	return nil
}

// CheckInvariants verifies the aggregate-level invariants.
func (l *Lease) CheckInvariants() error {
	last := l.LastChange()
	if last == nil {
		return fmt.Errorf("lease %s has no status history", l.ID)
	}
	if last.Status != l.Status {
		return fmt.Errorf("lease %s status %s disagrees with history %s", l.ID, l.Status, last.Status)
	}
	if l.Status == StatusFullyExecuted && !l.BothSigned() {
		return fmt.Errorf("lease %s is fully executed without both signatures", l.ID)
	}
	if l.Status == StatusFullyExecuted && l.UnresolvedChanges() > 0 {
		return fmt.Errorf("lease %s is fully executed with unresolved changes", l.ID)
	}
	if !l.StartDate.Before(l.EndDate) {
		return fmt.Errorf("lease %s has start_date >= end_date", l.ID)
	}
	return nil
}

func (l *Lease) deriveExecution(now time.Time) {
	if !l.BothSigned() || l.UnresolvedChanges() > 0 {
		return
	}
	if edge, ok := FindEdge(l.Status, StatusFullyExecuted); ok && edge.Trigger == TriggerDerived {
		l.appendStatus(StatusFullyExecuted, SystemActor, "both parties signed", now)
	}
}

func (l *Lease) authorize(actor Actor, edge Edge) error {
	if !edge.Allows(actor.Role) {
		return fmt.Errorf("%w: %s may not move lease from %s to %s", domain.ErrUnauthorized, actor.Role, edge.From, edge.To)
	}
	if (actor.Role == RoleLandlord || actor.Role == RoleTenant) && !l.IsParty(actor) {
		return fmt.Errorf("%w: actor %s is not the %s of this lease", domain.ErrUnauthorized, actor.ID, actor.Role)
	}
	return nil
}

func (l *Lease) resolveAll(now time.Time) {
	for i := range l.RequestedChanges {
		if !l.RequestedChanges[i].Resolved {
			l.RequestedChanges[i].Resolved = true
			t := now
			l.RequestedChanges[i].ResolvedAt = &t
		}
	}
}

func (l *Lease) appendStatus(to Status, actor Actor, reason string, now time.Time) {
	l.StatusHistory = append(l.StatusHistory, StatusChange{
		Status:    to,
		ChangedAt: now,
		ChangedBy: actor.ID,
		ActorRole: actor.Role,
		Reason:    reason,
	})
	l.Status = to
	l.UpdatedAt = now
}
