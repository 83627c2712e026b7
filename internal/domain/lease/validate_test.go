package lease_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

func validRequest() *lease.CreateRequest {
	return &lease.CreateRequest{
		PropertyID: "prop-1",
		TenantID:   tenant.ID,
		Terms: lease.Terms{
			StartDate:           lease.NewDate(2025, 1, 1),
			EndDate:             lease.NewDate(2025, 12, 31),
			RentAmount:          95000,
			SecurityDeposit:     190000,
			UtilitiesIncluded:   []string{"Water", " water ", "trash"},
			UtilitiesTenantPaid: []string{"electricity"},
			TenantEmail:         "tenant@example.com",
		},
	}
}

func TestNewLeaseDefaults(t *testing.T) {
	l, err := lease.NewLease(landlord, validRequest(), t0)
	if err != nil {
		t.Fatalf("NewLease: %v", err)
	}
	if l.Status != lease.StatusDraft {
		t.Errorf("status = %s, want draft", l.Status)
	}
	if l.LandlordID != landlord.ID {
		t.Errorf("landlord_id = %q", l.LandlordID)
	}
	if l.Version != 1 {
		t.Errorf("version = %d, want 1", l.Version)
	}
	if len(l.StatusHistory) != 1 || l.StatusHistory[0].ChangedBy != landlord.ID {
		t.Errorf("history = %+v", l.StatusHistory)
	}
	if l.RentFrequency != lease.RentMonthly || l.LeaseType != lease.TypeFixedTerm {
		t.Errorf("frequency=%s type=%s", l.RentFrequency, l.LeaseType)
	}
	if l.PaymentDay != lease.DefaultPaymentDay || l.NoticeDays != lease.DefaultNoticeDays {
		t.Errorf("payment_day=%d notice_days=%d", l.PaymentDay, l.NoticeDays)
	}
	if got := strings.Join(l.UtilitiesIncluded, ","); got != "water,trash" {
		t.Errorf("utilities_included = %q", got)
	}
}

func TestNewLeaseTenantRequest(t *testing.T) {
	req := validRequest()
	req.TenantID = ""
	req.LandlordID = landlord.ID
	l, err := lease.NewLease(tenant, req, t0)
	if err != nil {
		t.Fatalf("NewLease: %v", err)
	}
	if l.Status != lease.StatusPendingRequest || l.TenantID != tenant.ID {
		t.Fatalf("status=%s tenant=%s", l.Status, l.TenantID)
	}

	req.LandlordID = ""
	if _, err := lease.NewLease(tenant, req, t0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing landlord: got %v", err)
	}
}

func TestNewLeaseAuthorization(t *testing.T) {
	req := validRequest()
	req.LandlordID = "someone-else"
	if _, err := lease.NewLease(landlord, req, t0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("foreign landlord: got %v", err)
	}
	if _, err := lease.NewLease(lease.SystemActor, validRequest(), t0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("system create: got %v", err)
	}
	req = validRequest()
	req.LandlordID = landlord.ID
	l, err := lease.NewLease(admin, req, t0)
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if l.Status != lease.StatusDraft || l.StatusHistory[0].ActorRole != lease.RoleAdmin {
		t.Errorf("admin lease: status=%s history=%+v", l.Status, l.StatusHistory)
	}
}

func TestNewLeaseValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *lease.CreateRequest)
	}{
		{"start equals end", func(r *lease.CreateRequest) { r.EndDate = lease.NewDate(2025, 1, 1) }},
		{"end before start", func(r *lease.CreateRequest) { r.EndDate = lease.NewDate(2024, 6, 1) }},
		{"missing dates", func(r *lease.CreateRequest) { r.StartDate = lease.Date{} }},
		{"zero rent", func(r *lease.CreateRequest) { r.RentAmount = 0 }},
		{"negative deposit", func(r *lease.CreateRequest) { r.SecurityDeposit = -1 }},
		{"negative late fee", func(r *lease.CreateRequest) { r.LateFee = -500 }},
		{"negative grace", func(r *lease.CreateRequest) { r.GracePeriodDays = -2 }},
		{"payment day", func(r *lease.CreateRequest) { r.PaymentDay = 32 }},
		{"notice too short", func(r *lease.CreateRequest) { r.NoticeDays = 3 }},
		{"bad frequency", func(r *lease.CreateRequest) { r.RentFrequency = "weekly" }},
		{"bad lease type", func(r *lease.CreateRequest) { r.LeaseType = "forever" }},
		{"bad pet policy", func(r *lease.CreateRequest) { r.PetPolicy = "maybe" }},
		{"overlapping utilities", func(r *lease.CreateRequest) { r.UtilitiesTenantPaid = []string{"WATER"} }},
		{"bad email", func(r *lease.CreateRequest) { r.TenantEmail = "not-an-email" }},
		{"missing property", func(r *lease.CreateRequest) { r.PropertyID = " " }},
		{"same parties", func(r *lease.CreateRequest) { r.TenantID = landlord.ID }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			_, err := lease.NewLease(landlord, req, t0)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestApplyUpdate(t *testing.T) {
	l := newDraft(t)
	rent := lease.Money(130000)
	title := "  Flat 3B  "
	req := &lease.UpdateRequest{RentAmount: &rent, PropertyTitle: &title, Occupants: []string{"Ana", " "}}
	if err := l.ApplyUpdate(landlord, req); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if l.RentAmount != rent || l.PropertyTitle != "Flat 3B" {
		t.Errorf("rent=%s title=%q", l.RentAmount, l.PropertyTitle)
	}
	if len(l.Occupants) != 1 {
		t.Errorf("occupants = %v", l.Occupants)
	}
	if len(l.StatusHistory) != 1 {
		t.Errorf("update touched history")
	}
}

func TestApplyUpdateRejectsInvalidPatchAtomically(t *testing.T) {
	l := newDraft(t)
	end := l.StartDate
	rent := lease.Money(1)
	if err := l.ApplyUpdate(landlord, &lease.UpdateRequest{EndDate: &end, RentAmount: &rent}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if l.RentAmount != 120000 {
		t.Errorf("rent changed to %s", l.RentAmount)
	}
}

func TestApplyUpdatePermissions(t *testing.T) {
	l := newDraft(t)
	rent := lease.Money(1)
	if err := l.ApplyUpdate(tenant, &lease.UpdateRequest{RentAmount: &rent}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("tenant update: got %v", err)
	}
	l = inStatus(t, lease.StatusSentToTenant)
	if err := l.ApplyUpdate(landlord, &lease.UpdateRequest{RentAmount: &rent}); !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Errorf("locked update: got %v", err)
	}
}

func TestParseStatusLegacyAliases(t *testing.T) {
	tests := map[string]lease.Status{
		"draft":              lease.StatusDraft,
		"SENT_TO_TENANT":     lease.StatusSentToTenant,
		"awaiting_signature": lease.StatusSentToTenant,
		"under_review":       lease.StatusSentToTenant,
		"executed":           lease.StatusFullyExecuted,
		"canceled":           lease.StatusCancelled,
	}
	for in, want := range tests {
		got, err := lease.ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := lease.ParseStatus("archived"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown status: got %v", err)
	}
}

func TestLeaseJSONShape(t *testing.T) {
	l := newDraft(t)
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["rent_amount"] != "1200.00" {
		t.Errorf("rent_amount = %v", m["rent_amount"])
	}
	if m["start_date"] != "2025-04-01" {
		t.Errorf("start_date = %v", m["start_date"])
	}
	if m["status"] != "draft" {
		t.Errorf("status = %v", m["status"])
	}
	if m["landlord_signature"] != nil {
		t.Errorf("landlord_signature = %v", m["landlord_signature"])
	}
}
