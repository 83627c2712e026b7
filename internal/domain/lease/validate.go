package lease

import (
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain"
)

// Defaults applied to omitted terms.
const (
	DefaultPaymentDay    = 1
	DefaultNoticeDays    = 30
	DefaultPaymentMethod = "bank_transfer"

	MinNoticeDays = 7
	MaxNoticeDays = 90
)

// NewLease builds a lease from a create request on behalf of actor. A landlord
// creates a draft, a tenant requests one (pending_request) and an admin
// creates a draft for an explicit landlord. The caller assigns the ID.
func NewLease(actor Actor, req *CreateRequest, now time.Time) (*Lease, error) {
	l := &Lease{
		PropertyID: strings.TrimSpace(req.PropertyID),
		LandlordID: strings.TrimSpace(req.LandlordID),
		TenantID:   strings.TrimSpace(req.TenantID),
		Terms:      req.Terms,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	initial := StatusDraft
	switch actor.Role {
	case RoleLandlord:
		if l.LandlordID != "" && l.LandlordID != actor.ID {
			return nil, fmt.Errorf("%w: landlords may only create their own leases", domain.ErrUnauthorized)
		}
		l.LandlordID = actor.ID
	case RoleTenant:
		if l.TenantID != "" && l.TenantID != actor.ID {
			return nil, fmt.Errorf("%w: tenants may only request leases for themselves", domain.ErrUnauthorized)
		}
		l.TenantID = actor.ID
		initial = StatusPendingRequest
	case RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: role %q may not create leases", domain.ErrUnauthorized, actor.Role)
	}

	var errs []error
	if l.PropertyID == "" {
		errs = append(errs, errors.New("property_id is required"))
	}
	if l.LandlordID == "" {
		errs = append(errs, errors.New("landlord_id is required"))
	}
	if l.TenantID == "" {
		errs = append(errs, errors.New("tenant_id is required"))
	}
	if l.LandlordID != "" && l.LandlordID == l.TenantID {
		errs = append(errs, errors.New("landlord and tenant must differ"))
	}
	if len(errs) > 0 {
		return nil, validationError(errs)
	}

	l.Terms.applyDefaults()
	l.Terms.normalize()
	if err := l.Terms.Validate(); err != nil {
		return nil, err
	}

	l.appendStatus(initial, actor, "", now)
	return l, nil
}

// Validate checks the term and financial invariants.
func (t *Terms) Validate() error {
	var errs []error

	switch {
	case t.StartDate.IsZero() || t.EndDate.IsZero():
		errs = append(errs, errors.New("start_date and end_date are required"))
	case !t.StartDate.Before(t.EndDate):
		errs = append(errs, fmt.Errorf("end_date %s must be after start_date %s", t.EndDate, t.StartDate))
	}

	if t.RentAmount <= 0 {
		errs = append(errs, errors.New("rent_amount must be positive"))
	}
	for name, m := range map[string]Money{
		"security_deposit": t.SecurityDeposit,
		"late_fee":         t.LateFee,
		"pet_fee":          t.PetFee,
	} {
		if m < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if t.GracePeriodDays < 0 {
		errs = append(errs, errors.New("grace_period_days must not be negative"))
	}
	if t.ParkingSpaces < 0 {
		errs = append(errs, errors.New("parking_spaces must not be negative"))
	}
	if t.PaymentDay < 1 || t.PaymentDay > 31 {
		errs = append(errs, fmt.Errorf("payment_day %d out of range 1-31", t.PaymentDay))
	}
	if t.NoticeDays < MinNoticeDays || t.NoticeDays > MaxNoticeDays {
		errs = append(errs, fmt.Errorf("notice_days %d out of range %d-%d", t.NoticeDays, MinNoticeDays, MaxNoticeDays))
	}

	switch t.RentFrequency {
	case RentMonthly, RentOther:
	default:
		errs = append(errs, fmt.Errorf("unknown rent_frequency %q", t.RentFrequency))
	}
	switch t.LeaseType {
	case TypeFixedTerm, TypeMonthToMonth:
	default:
		errs = append(errs, fmt.Errorf("unknown lease_type %q", t.LeaseType))
	}
	switch t.PetPolicy {
	case "", PetsNotAllowed, PetsAllowed, PetsAllowedWithFee:
	default:
		errs = append(errs, fmt.Errorf("unknown pet_policy %q", t.PetPolicy))
	}

	for _, u := range t.UtilitiesIncluded {
		if slices.Contains(t.UtilitiesTenantPaid, u) {
			errs = append(errs, fmt.Errorf("utility %q cannot be both included and tenant-paid", u))
		}
	}

	for name, addr := range map[string]string{
		"landlord_email": t.LandlordEmail,
		"tenant_email":   t.TenantEmail,
	} {
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a valid address", name, addr))
		}
	}

	if len(errs) > 0 {
		return validationError(errs)
	}
	return nil
}

func (t *Terms) applyDefaults() {
	if t.RentFrequency == "" {
		t.RentFrequency = RentMonthly
	}
	if t.LeaseType == "" {
		t.LeaseType = TypeFixedTerm
	}
	if t.PaymentDay == 0 {
		t.PaymentDay = DefaultPaymentDay
	}
	if t.NoticeDays == 0 {
		t.NoticeDays = DefaultNoticeDays
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = DefaultPaymentMethod
	}
}

func (t *Terms) normalize() {
	t.PropertyTitle = strings.TrimSpace(t.PropertyTitle)
	t.PropertyAddress = strings.TrimSpace(t.PropertyAddress)
	t.LandlordName = strings.TrimSpace(t.LandlordName)
	t.TenantName = strings.TrimSpace(t.TenantName)
	t.LandlordEmail = strings.TrimSpace(t.LandlordEmail)
	t.TenantEmail = strings.TrimSpace(t.TenantEmail)
	t.RentFrequency = RentFrequency(strings.ToLower(strings.TrimSpace(string(t.RentFrequency))))
	t.LeaseType = Type(strings.ToLower(strings.TrimSpace(string(t.LeaseType))))
	t.PetPolicy = PetPolicy(strings.ToLower(strings.TrimSpace(string(t.PetPolicy))))
	t.UtilitiesIncluded = normalizeTags(t.UtilitiesIncluded)
	t.UtilitiesTenantPaid = normalizeTags(t.UtilitiesTenantPaid)
	t.Occupants = compactNames(t.Occupants)
}

// normalizeTags lower-cases, trims and de-duplicates utility tags, keeping
// first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func compactNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func validationError(errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	slices.Sort(msgs)
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

func (r *UpdateRequest) applyTo(t *Terms) {
	setIf(&t.PropertyTitle, r.PropertyTitle)
	setIf(&t.PropertyAddress, r.PropertyAddress)
	setIf(&t.LandlordName, r.LandlordName)
	setIf(&t.LandlordEmail, r.LandlordEmail)
	setIf(&t.TenantName, r.TenantName)
	setIf(&t.TenantEmail, r.TenantEmail)
	setIf(&t.StartDate, r.StartDate)
	setIf(&t.EndDate, r.EndDate)
	setIf(&t.RentAmount, r.RentAmount)
	setIf(&t.RentFrequency, r.RentFrequency)
	setIf(&t.SecurityDeposit, r.SecurityDeposit)
	setIf(&t.LateFee, r.LateFee)
	setIf(&t.GracePeriodDays, r.GracePeriodDays)
	setIf(&t.PaymentDay, r.PaymentDay)
	setIf(&t.PaymentMethod, r.PaymentMethod)
	setIf(&t.LeaseType, r.LeaseType)
	setIf(&t.NoticeDays, r.NoticeDays)
	setIf(&t.PetPolicy, r.PetPolicy)
	setIf(&t.PetFee, r.PetFee)
	setIf(&t.ParkingSpaces, r.ParkingSpaces)
	setIf(&t.Furnished, r.Furnished)
	setIf(&t.MaintenanceTerms, r.MaintenanceTerms)
	setIf(&t.AdditionalTerms, r.AdditionalTerms)
	if r.Occupants != nil {
		t.Occupants = cloneStrings(r.Occupants)
	}
	if r.UtilitiesIncluded != nil {
		t.UtilitiesIncluded = cloneStrings(r.UtilitiesIncluded)
	}
	if r.UtilitiesTenantPaid != nil {
		t.UtilitiesTenantPaid = cloneStrings(r.UtilitiesTenantPaid)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
