// Package lease defines the Lease aggregate and its lifecycle state machine.
package lease

import (
	"slices"
	"time"
)

// Role identifies the kind of actor issuing a command.
type Role string

const (
	RoleLandlord Role = "landlord"
	RoleTenant   Role = "tenant"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system" // time-triggered jobs, derived transitions
)

// Actor is the authenticated principal behind a command.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is recorded in the history for engine-derived and scheduled transitions.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Party is one of the two signatories of a lease.
type Party string

const (
	PartyLandlord Party = "landlord"
	PartyTenant   Party = "tenant"
)

// RentFrequency is the billing cadence of the rent.
type RentFrequency string

const (
	RentMonthly RentFrequency = "monthly"
	RentOther   RentFrequency = "other"
)

// Type distinguishes fixed-term leases from rolling ones.
type Type string

const (
	TypeFixedTerm    Type = "fixed_term"
	TypeMonthToMonth Type = "month_to_month"
)

// PetPolicy states whether pets are allowed.
type PetPolicy string

const (
	PetsNotAllowed     PetPolicy = "not_allowed"
	PetsAllowedWithFee PetPolicy = "allowed_with_fee"
	PetsAllowed        PetPolicy = "allowed"
)

// Signature is a server-recorded attestation: who signed, when and from where.
// It is a provenance trail, not a cryptographic signature.
type Signature struct {
	SignedAt          time.Time `json:"signed_at"`
	SignatureImageRef string    `json:"signature_image_ref"`
	SourceIP          string    `json:"source_ip"`
}

// RequestedChange is a counterparty's proposed edit.
type RequestedChange struct {
	Text        string     `json:"text"`
	RequestedAt time.Time  `json:"requested_at"`
	RequestedBy string     `json:"requested_by"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// StatusChange is one entry of the append-only audit trail.
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by"`
	ActorRole Role      `json:"actor_role"`
	Reason    string    `json:"reason,omitempty"`
}

// Terms holds every landlord-editable field of a lease.
type Terms struct {
	PropertyTitle   string `json:"property_title,omitempty"`
	PropertyAddress string `json:"property_address,omitempty"`
	LandlordName    string `json:"landlord_name,omitempty"`
	LandlordEmail   string `json:"landlord_email,omitempty"`
	TenantName      string `json:"tenant_name,omitempty"`
	TenantEmail     string `json:"tenant_email,omitempty"`

	StartDate Date `json:"start_date"`
	EndDate   Date `json:"end_date"`

	RentAmount      Money         `json:"rent_amount"`
	RentFrequency   RentFrequency `json:"rent_frequency"`
	SecurityDeposit Money         `json:"security_deposit"`
	LateFee         Money         `json:"late_fee"`
	GracePeriodDays int           `json:"grace_period_days"`
	PaymentDay      int           `json:"payment_day"`
	PaymentMethod   string        `json:"payment_method,omitempty"`

	LeaseType     Type      `json:"lease_type"`
	NoticeDays    int       `json:"notice_days"`
	Occupants     []string  `json:"occupants"`
	PetPolicy     PetPolicy `json:"pet_policy,omitempty"`
	PetFee        Money     `json:"pet_fee"`
	ParkingSpaces int       `json:"parking_spaces"`
	Furnished     bool      `json:"furnished"`

	MaintenanceTerms string `json:"maintenance_terms,omitempty"`
	AdditionalTerms  string `json:"additional_terms,omitempty"`

	UtilitiesIncluded   []string `json:"utilities_included"`
	UtilitiesTenantPaid []string `json:"utilities_tenant_paid"`
}

// Lease is the rental agreement tracked through its lifecycle.
// Status is a cached projection of the last StatusHistory entry.
type Lease struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	LandlordID string `json:"landlord_id"`
	TenantID   string `json:"tenant_id"`

	Terms

	Status            Status            `json:"status"`
	LandlordSignature *Signature        `json:"landlord_signature"`
	TenantSignature   *Signature        `json:"tenant_signature"`
	RequestedChanges  []RequestedChange `json:"requested_changes"`
	StatusHistory     []StatusChange    `json:"status_history"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new lease.
// LandlordID may be omitted when the landlord creates the lease; TenantID may
// be omitted when the tenant requests one.
type CreateRequest struct {
	PropertyID string `json:"property_id"`
	LandlordID string `json:"landlord_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	Terms
}

// UpdateRequest patches non-status fields. Nil fields are left unchanged.
type UpdateRequest struct {
	ExpectedVersion int `json:"expected_version"`

	PropertyTitle   *string `json:"property_title,omitempty"`
	PropertyAddress *string `json:"property_address,omitempty"`
	LandlordName    *string `json:"landlord_name,omitempty"`
	LandlordEmail   *string `json:"landlord_email,omitempty"`
	TenantName      *string `json:"tenant_name,omitempty"`
	TenantEmail     *string `json:"tenant_email,omitempty"`

	StartDate *Date `json:"start_date,omitempty"`
	EndDate   *Date `json:"end_date,omitempty"`

	RentAmount      *Money         `json:"rent_amount,omitempty"`
	RentFrequency   *RentFrequency `json:"rent_frequency,omitempty"`
	SecurityDeposit *Money         `json:"security_deposit,omitempty"`
	LateFee         *Money         `json:"late_fee,omitempty"`
	GracePeriodDays *int           `json:"grace_period_days,omitempty"`
	PaymentDay      *int           `json:"payment_day,omitempty"`
	PaymentMethod   *string        `json:"payment_method,omitempty"`

	LeaseType     *Type      `json:"lease_type,omitempty"`
	NoticeDays    *int       `json:"notice_days,omitempty"`
	Occupants     []string   `json:"occupants,omitempty"`
	PetPolicy     *PetPolicy `json:"pet_policy,omitempty"`
	PetFee        *Money     `json:"pet_fee,omitempty"`
	ParkingSpaces *int       `json:"parking_spaces,omitempty"`
	Furnished     *bool      `json:"furnished,omitempty"`

	MaintenanceTerms *string `json:"maintenance_terms,omitempty"`
	AdditionalTerms  *string `json:"additional_terms,omitempty"`

	UtilitiesIncluded   []string `json:"utilities_included,omitempty"`
	UtilitiesTenantPaid []string `json:"utilities_tenant_paid,omitempty"`
}

// TransitionRequest asks the engine to move a lease to another status.
type TransitionRequest struct {
	ToStatus        Status `json:"to_status"`
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int    `json:"expected_version"`
}

// SignRequest records a party's signature.
type SignRequest struct {
	Party             Party  `json:"party"`
	SignatureImageRef string `json:"signature_image_ref"`
	ExpectedVersion   int    `json:"expected_version"`
}

// ChangeRequest proposes an edit on behalf of the tenant.
type ChangeRequest struct {
	Text            string `json:"text"`
	ExpectedVersion int    `json:"expected_version"`
}

// ListFilter narrows a lease listing to one actor's leases.
type ListFilter struct {
	Role       Role
	ActorID    string
	Status     Status
	PropertyID string
	Limit      int
	Offset     int
}

// HasSigned reports whether the given party has signed.
func (l *Lease) HasSigned(p Party) bool {
	return l.signature(p) != nil
}

// BothSigned reports whether landlord and tenant signatures are both present.
func (l *Lease) BothSigned() bool {
	return l.LandlordSignature != nil && l.TenantSignature != nil
}

// UnresolvedChanges returns the number of requested changes not yet resolved.
func (l *Lease) UnresolvedChanges() int {
	n := 0
	for i := range l.RequestedChanges {
		if !l.RequestedChanges[i].Resolved {
			n++
		}
	}
	return n
}

// IsParty reports whether the actor is this lease's landlord or tenant.
func (l *Lease) IsParty(a Actor) bool {
	switch a.Role {
	case RoleLandlord:
		return a.ID != "" && a.ID == l.LandlordID
	case RoleTenant:
		return a.ID != "" && a.ID == l.TenantID
	}
	return false
}

// CanView reports whether the actor may read this lease.
func (l *Lease) CanView(a Actor) bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem || l.IsParty(a)
}

// Counterparty returns the party that should be told about a change made by actor.
func (l *Lease) Counterparty(a Actor) Party {
	if a.Role == RoleTenant {
		return PartyLandlord
	}
	return PartyTenant
}

// ContactEmail returns the stored e-mail address of the given party.
func (l *Lease) ContactEmail(p Party) string {
	if p == PartyLandlord {
		return l.LandlordEmail
	}
	return l.TenantEmail
}

// LastChange returns the most recent history entry, or nil for an empty history.
func (l *Lease) LastChange() *StatusChange {
	if len(l.StatusHistory) == 0 {
		return nil
	}
	return &l.StatusHistory[len(l.StatusHistory)-1]
}

// Clone returns a deep copy of the lease.
func (l *Lease) Clone() *Lease {
	c := *l
	c.Occupants = cloneStrings(l.Occupants)
	c.UtilitiesIncluded = cloneStrings(l.UtilitiesIncluded)
	c.UtilitiesTenantPaid = cloneStrings(l.UtilitiesTenantPaid)
	if l.LandlordSignature != nil {
		s := *l.LandlordSignature
		c.LandlordSignature = &s
	}
	if l.TenantSignature != nil {
		s := *l.TenantSignature
		c.TenantSignature = &s
	}
	c.RequestedChanges = slices.Clone(l.RequestedChanges)
	for i, rc := range c.RequestedChanges {
		if rc.ResolvedAt != nil {
			t := *rc.ResolvedAt
			c.RequestedChanges[i].ResolvedAt = &t
		}
	}
	c.StatusHistory = slices.Clone(l.StatusHistory)
	return &c
}

func (l *Lease) signature(p Party) *Signature {
	switch p {
	case PartyLandlord:
		return l.LandlordSignature
	case PartyTenant:
		return l.TenantSignature
	}
	return nil
}

func cloneStrings(s []string) []string { return slices.Clone(s) }
