package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/middleware"
	"github.com/Strob0t/LeaseForge/internal/service"
)

// Error kinds of the API error envelope.
const (
	KindValidation         = "ValidationError"
	KindNotFound           = "NotFound"
	KindUnauthorized       = "Unauthorized"
	KindIllegalTransition  = "IllegalTransition"
	KindPreconditionFailed = "PreconditionFailed"
	KindAlreadySigned      = "AlreadySigned"
	KindStaleState         = "StaleState"
	KindUnavailable        = "Unavailable"
	KindInternal           = "Internal"
)

const defaultBodyLimit = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit. Unknown fields are
// rejected so typos in term names do not silently drop edits.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, KindValidation, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, KindValidation, "invalid request body: "+err.Error())
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// requireActor returns the authenticated actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (lease.Actor, bool) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindUnauthorized, "authorization required")
	}
	return a, ok
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, KindValidation, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// sourceIP returns the client address without port. chi's RealIP middleware
// has already replaced RemoteAddr with X-Forwarded-For/X-Real-IP if present.
func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}

// writeDomainError maps a service error to its API kind and status. Internal
// errors are logged and answered with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, kind, "internal server error")
		return
	}
	writeError(w, status, kind, clientMessage(err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, KindValidation
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, KindUnauthorized
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, KindIllegalTransition
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, KindPreconditionFailed
	case errors.Is(err, domain.ErrAlreadySigned):
		return http.StatusConflict, KindAlreadySigned
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, KindStaleState
	case errors.Is(err, service.ErrBlobStoreDisabled):
		return http.StatusServiceUnavailable, KindUnavailable
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// clientMessage strips the sentinel text that the kind already conveys.
func clientMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{domain.ErrValidation, domain.ErrUnauthorized, domain.ErrPreconditionFailed} {
		msg = strings.Replace(msg, sentinel.Error()+": ", "", 1)
	}
	return msg
}
