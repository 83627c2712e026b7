package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/LeaseForge/internal/adapter/otel"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/middleware"
)

// RouterOptions configures the middleware stack built by NewRouter. Nil
// fields switch the corresponding layer off.
type RouterOptions struct {
	CORSOrigin string
	// Verifier authenticates Bearer tokens; nil reads X-User-ID/X-User-Role.
	Verifier    *middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter
	Idempotency middleware.IdempotencyKV
	// WS serves GET /ws.
	WS http.HandlerFunc
	// ServiceName enables otelhttp spans when set.
	ServiceName    string
	RequestTimeout time.Duration
}

// NewRouter builds the full handler: transport middleware, authentication,
// health endpoints, the websocket endpoint and the /api/v1 routes.
func NewRouter(h *Handlers, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(opts.CORSOrigin))
	if opts.ServiceName != "" {
		r.Use(otel.HTTPMiddleware(opts.ServiceName))
	}
	r.Use(middleware.Auth(opts.Verifier))
	r.Use(captureActor)
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Handler)
	}

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	if opts.WS != nil {
		r.Get("/ws", opts.WS)
	}

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}
		if opts.Idempotency != nil {
			r.Use(middleware.Idempotency(opts.Idempotency))
		}
		MountRoutes(r, h)
	})

	return r
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "1"})
		})

		// Leases
		r.Get("/leases", h.ListLeases)
		r.Post("/leases", h.CreateLease)
		r.Get("/leases/{id}", h.GetLease)
		r.Patch("/leases/{id}", h.UpdateLease)
		r.Get("/leases/{id}/history", h.LeaseHistory)

		// Lifecycle
		r.Post("/leases/{id}/transition", h.TransitionLease)
		r.Post("/leases/{id}/sign", h.SignLease)
		r.Post("/leases/{id}/changes", h.RequestChange)
		r.Post("/leases/{id}/changes/{index}/resolve", h.ResolveChange)

		// Signature images
		r.Post("/signatures/images", h.UploadSignatureImage)
		r.Get("/signatures/images/{key}", h.GetSignatureImage)

		// Admin
		r.With(middleware.RequireRole(lease.RoleAdmin)).Post("/admin/sweep", h.SweepExpired)
	})
}
