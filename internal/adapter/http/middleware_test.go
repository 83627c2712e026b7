package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/middleware"
	"github.com/Strob0t/LeaseForge/internal/service"
)

// hijackableRecorder wraps httptest.ResponseRecorder to implement http.Hijacker.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	// Only delegation is under test.
	return nil, nil, nil
}

func TestResponseWriterHijack(t *testing.T) {
	inner := &hijackableRecorder{httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	// responseWriter must satisfy http.Hijacker.
	hj, ok := http.ResponseWriter(rw).(http.Hijacker)
	if !ok {
		t.Fatal("responseWriter does not implement http.Hijacker")
	}

	_, _, err := hj.Hijack()
	if err != nil {
		t.Fatalf("Hijack returned unexpected error: %v", err)
	}
}

func TestResponseWriterHijackFallback(t *testing.T) {
	// Standard httptest.ResponseRecorder does NOT implement Hijacker.
	inner := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	hj, ok := http.ResponseWriter(rw).(http.Hijacker)
	if !ok {
		t.Fatal("responseWriter does not implement http.Hijacker")
	}

	_, _, err := hj.Hijack()
	if err == nil {
		t.Fatal("expected error when upstream does not implement Hijacker")
	}
}

func TestResponseWriterFlush(t *testing.T) {
	inner := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	// responseWriter must satisfy http.Flusher.
	f, ok := http.ResponseWriter(rw).(http.Flusher)
	if !ok {
		t.Fatal("responseWriter does not implement http.Flusher")
	}

	// Should not panic.
	f.Flush()

	if !inner.Flushed {
		t.Fatal("expected inner ResponseRecorder to be flushed")
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("https://app.example.com")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/leases", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if called {
		t.Error("preflight must not reach the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Errorf("allow methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestCORSDisabled(t *testing.T) {
	h := CORS("")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("no CORS headers expected without an origin")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing %s", name)
		}
	}
}

func TestLoggerRecordsActorAndStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	inner := captureActor(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	withActor := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithActor(r.Context(), lease.Actor{ID: "u-1", Role: lease.RoleTenant})
		inner.ServeHTTP(w, r.WithContext(ctx))
	})

	rec := httptest.NewRecorder()
	Logger(withActor).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/leases", http.NoBody))

	out := buf.String()
	if !strings.Contains(out, `"actor":"tenant:u-1"`) {
		t.Errorf("log missing actor: %s", out)
	}
	if !strings.Contains(out, `"status":418`) {
		t.Errorf("log missing status: %s", out)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("%w: bad date", domain.ErrValidation), http.StatusBadRequest, KindValidation},
		{fmt.Errorf("get lease x: %w", domain.ErrNotFound), http.StatusNotFound, KindNotFound},
		{fmt.Errorf("%w: not a party", domain.ErrUnauthorized), http.StatusForbidden, KindUnauthorized},
		{fmt.Errorf("%w: draft -> expired", domain.ErrIllegalTransition), http.StatusConflict, KindIllegalTransition},
		{fmt.Errorf("%w: unresolved changes", domain.ErrPreconditionFailed), http.StatusPreconditionFailed, KindPreconditionFailed},
		{domain.ErrAlreadySigned, http.StatusConflict, KindAlreadySigned},
		{fmt.Errorf("update: %w", domain.ErrConflict), http.StatusConflict, KindStaleState},
		{service.ErrBlobStoreDisabled, http.StatusServiceUnavailable, KindUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			status, kind := classify(tt.err)
			if status != tt.status || kind != tt.kind {
				t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, kind, tt.status, tt.kind)
			}
		})
	}
}

func TestClientMessageStripsSentinel(t *testing.T) {
	err := fmt.Errorf("%w: end_date must be after start_date", domain.ErrValidation)
	if got := clientMessage(err); got != "end_date must be after start_date" {
		t.Errorf("clientMessage = %q", got)
	}
}
