package lease

import (
	"fmt"
	"strings"

	"github.com/Strob0t/LeaseForge/internal/domain"
)

// Status represents the lifecycle state of a lease.
type Status string

const (
	StatusPendingRequest   Status = "pending_request"
	StatusDraft            Status = "draft"
	StatusSentToTenant     Status = "sent_to_tenant"
	StatusChangesRequested Status = "changes_requested"
	StatusSentToLandlord   Status = "sent_to_landlord"
	StatusSignedByLandlord Status = "signed_by_landlord"
	StatusSignedByTenant   Status = "signed_by_tenant"
	StatusFullyExecuted    Status = "fully_executed"
	StatusCancelled        Status = "cancelled"
	StatusExpired          Status = "expired"
)

// AllStatuses lists every lifecycle state in lifecycle order.
var AllStatuses = []Status{
	StatusPendingRequest,
	StatusDraft,
	StatusSentToTenant,
	StatusChangesRequested,
	StatusSentToLandlord,
	StatusSignedByLandlord,
	StatusSignedByTenant,
	StatusFullyExecuted,
	StatusCancelled,
	StatusExpired,
}

var validStatuses = func() map[Status]bool {
	m := make(map[Status]bool, len(AllStatuses))
	for _, s := range AllStatuses {
		m[s] = true
	}
	return m
}()

// legacyStatuses maps names used by older dashboard variants to canonical states.
var legacyStatuses = map[string]Status{
	"awaiting_signature": StatusSentToTenant,
	"under_review":       StatusSentToTenant,
	"pending":            StatusPendingRequest,
	"signed":             StatusFullyExecuted,
	"executed":           StatusFullyExecuted,
	"canceled":           StatusCancelled,
}

// Valid reports whether s is a canonical lifecycle state.
func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether s admits no client-driven transitions.
// fully_executed still moves to expired through the expiry sweep.
func (s Status) Terminal() bool {
	return s == StatusFullyExecuted || s == StatusCancelled || s == StatusExpired
}

// ParseStatus resolves a canonical or legacy status name.
func ParseStatus(s string) (Status, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if st := Status(name); st.Valid() {
		return st, nil
	}
	if st, ok := legacyStatuses[name]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s)
}

// ParseRole resolves a role name; "owner" is accepted for landlord.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "landlord", "owner":
		return RoleLandlord, nil
	case "tenant":
		return RoleTenant, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", domain.ErrValidation, s)
}

// SignedStatus returns the status a lease enters when p signs.
func SignedStatus(p Party) Status {
	if p == PartyLandlord {
		return StatusSignedByLandlord
	}
	return StatusSignedByTenant
}
