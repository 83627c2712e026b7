package messagequeue

import "time"

// LeaseEventPayload is the schema for all leases.* messages.
type LeaseEventPayload struct {
	LeaseID    string    `json:"lease_id"`
	PropertyID string    `json:"property_id"`
	LandlordID string    `json:"landlord_id"`
	TenantID   string    `json:"tenant_id"`
	From       string    `json:"from,omitempty"`
	Status     string    `json:"status"`
	Version    int       `json:"version"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SignaturePayload extends the lease event on leases.signed messages.
type SignaturePayload struct {
	LeaseEventPayload
	Party             string `json:"party"`
	SignatureImageRef string `json:"signature_image_ref"`
}

// ChangeRequestPayload extends the lease event on change subjects.
type ChangeRequestPayload struct {
	LeaseEventPayload
	Index int    `json:"index"`
	Text  string `json:"text"`
}
