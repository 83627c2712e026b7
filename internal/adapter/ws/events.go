package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/broadcast"
)

// BroadcastEvent marshals a typed event and broadcasts it. Lease events only
// reach the two parties of the lease and admins.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	}, audience(payload))
}

func audience(payload any) func(lease.Actor) bool {
	var ev *broadcast.LeaseStatusEvent
	switch p := payload.(type) {
	case broadcast.LeaseStatusEvent:
		ev = &p
	case *broadcast.LeaseStatusEvent:
		ev = p
	default:
		return nil
	}
	return func(a lease.Actor) bool {
		switch a.Role {
		case lease.RoleAdmin:
			return true
		case lease.RoleLandlord:
			return a.ID == ev.LandlordID
		case lease.RoleTenant:
			return a.ID == ev.TenantID
		}
		return false
	}
}
