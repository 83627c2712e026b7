// Package broadcast defines the port for pushing live updates to connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Event types pushed to the UI.
const (
	EventLeaseStatus = "lease.status"
	EventLeaseUpdate = "lease.updated"
)

// LeaseStatusEvent tells dashboards to refresh a lease.
type LeaseStatusEvent struct {
	LeaseID    string `json:"lease_id"`
	PropertyID string `json:"property_id"`
	LandlordID string `json:"landlord_id"`
	TenantID   string `json:"tenant_id"`
	Status     string `json:"status"`
	Version    int    `json:"version"`
	ChangedBy  string `json:"changed_by"`
}
