package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/middleware"
	"github.com/Strob0t/LeaseForge/internal/port/broadcast"
)

func TestNewHub(t *testing.T) {
	hub := NewHub("")
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub("")

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	}, nil)
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub("")

	// A channel cannot be marshaled to JSON; should log, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub("")

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, actor: lease.Actor{ID: "x"}})

	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0, got %d", hub.ConnectionCount())
	}
}

func TestAudience(t *testing.T) {
	allow := audience(broadcast.LeaseStatusEvent{LeaseID: "l1", LandlordID: "ll-1", TenantID: "tn-1"})
	if allow == nil {
		t.Fatal("expected filter for lease event")
	}

	tests := []struct {
		actor lease.Actor
		want  bool
	}{
		{lease.Actor{ID: "ll-1", Role: lease.RoleLandlord}, true},
		{lease.Actor{ID: "tn-1", Role: lease.RoleTenant}, true},
		{lease.Actor{ID: "adm", Role: lease.RoleAdmin}, true},
		{lease.Actor{ID: "ll-2", Role: lease.RoleLandlord}, false},
		{lease.Actor{ID: "ll-1", Role: lease.RoleTenant}, false},
		{lease.Actor{ID: "tn-2", Role: lease.RoleTenant}, false},
	}
	for _, tt := range tests {
		if got := allow(tt.actor); got != tt.want {
			t.Errorf("allow(%+v) = %v, want %v", tt.actor, got, tt.want)
		}
	}

	if audience(map[string]string{"k": "v"}) != nil {
		t.Error("non-lease payloads should reach everyone")
	}
}

func TestHandleWSRequiresActor(t *testing.T) {
	hub := NewHub("")
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHubDeliversOnlyToParties(t *testing.T) {
	hub := NewHub("")
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := lease.Actor{ID: r.URL.Query().Get("id"), Role: lease.Role(r.URL.Query().Get("role"))}
		hub.HandleWS(w, r.WithContext(middleware.WithActor(r.Context(), actor)))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func(id, role string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + id + "&role=" + role
		c, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", id, err)
		}
		return c
	}

	tenant := dial("tn-1", "tenant")
	defer tenant.CloseNow()
	stranger := dial("tn-2", "tenant")
	defer stranger.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ConnectionCount() != 2 {
		t.Fatalf("connections = %d, want 2", hub.ConnectionCount())
	}

	hub.BroadcastEvent(ctx, broadcast.EventLeaseStatus, broadcast.LeaseStatusEvent{
		LeaseID: "l1", LandlordID: "ll-1", TenantID: "tn-1", Status: "sent_to_tenant", Version: 2,
	})

	_, data, err := tenant.Read(ctx)
	if err != nil {
		t.Fatalf("tenant read: %v", err)
	}
	if !strings.Contains(string(data), `"type":"lease.status"`) || !strings.Contains(string(data), `"lease_id":"l1"`) {
		t.Errorf("tenant got %s", data)
	}

	rctx, rcancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer rcancel()
	if _, data, err := stranger.Read(rctx); err == nil {
		t.Errorf("stranger received %s", data)
	}
}
