package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

func limited(rl *RateLimiter) http.Handler {
	return rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remoteAddr string, actor *lease.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leases", http.NoBody)
	req.RemoteAddr = remoteAddr
	if actor != nil {
		req = req.WithContext(WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBurstThenReject(t *testing.T) {
	h := limited(NewRateLimiter(1, 5))

	for i := range 5 {
		rec := hit(h, "192.0.2.1:4000", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(4-i) {
			t.Errorf("request %d: remaining = %q", i+1, got)
		}
	}

	rec := hit(h, "192.0.2.1:4000", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over budget: status %d, want 429", rec.Code)
	}
	if ra, _ := strconv.Atoi(rec.Header().Get("Retry-After")); ra < 1 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "5" {
		t.Errorf("limit header = %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiterRefusalDoesNotConsume(t *testing.T) {
	rl := NewRateLimiter(20, 1)
	if _, _, ok := rl.allow("ip:a"); !ok {
		t.Fatal("first request refused")
	}
	for range 10 {
		rl.allow("ip:a")
	}
	// Refused calls cancel their reservation, so the bucket refills on time.
	time.Sleep(80 * time.Millisecond)
	if _, _, ok := rl.allow("ip:a"); !ok {
		t.Error("bucket did not refill after refused requests")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	h := limited(NewRateLimiter(1, 2))

	hit(h, "10.0.0.1:1", nil)
	hit(h, "10.0.0.1:2", nil)
	if rec := hit(h, "10.0.0.1:3", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("10.0.0.1: status %d, want 429", rec.Code)
	}
	if rec := hit(h, "10.0.0.2:1", nil); rec.Code != http.StatusOK {
		t.Errorf("10.0.0.2: status %d, want 200", rec.Code)
	}
}

func TestRateLimiterKeysByActor(t *testing.T) {
	h := limited(NewRateLimiter(1, 1))
	t1 := &lease.Actor{ID: "t-1", Role: lease.RoleTenant}
	t2 := &lease.Actor{ID: "t-2", Role: lease.RoleTenant}

	if rec := hit(h, "10.0.0.9:5555", t1); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.9:5555", t1); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request from same actor: %d, want 429", rec.Code)
	}
	if rec := hit(h, "10.0.0.9:5555", t2); rec.Code != http.StatusOK {
		t.Errorf("other actor behind same IP: %d, want 200", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	rl.allow("ip:10.0.0.1")
	rl.allow("actor:l-1")
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}
	rl.cleanup(time.Hour)
	if rl.Len() != 2 {
		t.Fatalf("fresh clients were dropped: Len = %d", rl.Len())
	}
	rl.cleanup(-time.Second)
	if rl.Len() != 0 {
		t.Errorf("Len after cleanup = %d, want 0", rl.Len())
	}
}
