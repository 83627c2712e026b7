package http

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/service"
)

// Sweeper runs one expiry pass on demand.
type Sweeper interface {
	SweepOnce(ctx context.Context) (service.SweepResult, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Handlers holds the dependencies of the lease API.
type Handlers struct {
	Leases  *service.LeaseService
	Sweeper Sweeper
	// Checks are run by GET /health/ready, keyed by dependency name.
	Checks map[string]ReadinessCheck
	// BodyLimit caps JSON request bodies; ImageLimit caps signature uploads.
	BodyLimit  int64
	ImageLimit int64
}

// CreateLease handles POST /api/v1/leases
func (h *Handlers) CreateLease(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[lease.CreateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	l, err := h.Leases.Create(r.Context(), actor, &req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/leases/"+l.ID)
	writeJSON(w, http.StatusCreated, l)
}

// GetLease handles GET /api/v1/leases/{id}
func (h *Handlers) GetLease(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	l, err := h.Leases.Get(r.Context(), actor, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ListLeases handles GET /api/v1/leases?role=&actor=&status=&property_id=&limit=&offset=
func (h *Handlers) ListLeases(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}
	q := r.URL.Query()

	leases, err := h.Leases.List(r.Context(), actor, service.ListRequest{
		Role:       q.Get("role"),
		ActorID:    q.Get("actor"),
		Status:     q.Get("status"),
		PropertyID: q.Get("property_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leases)
}

// UpdateLease handles PATCH /api/v1/leases/{id}
func (h *Handlers) UpdateLease(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[lease.UpdateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	l, err := h.Leases.Update(r.Context(), actor, urlParam(r, "id"), &req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// TransitionLease handles POST /api/v1/leases/{id}/transition
func (h *Handlers) TransitionLease(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[lease.TransitionRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	l, err := h.Leases.ApplyTransition(r.Context(), actor, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// SignLease handles POST /api/v1/leases/{id}/sign
func (h *Handlers) SignLease(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[lease.SignRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	l, err := h.Leases.RecordSignature(r.Context(), actor, urlParam(r, "id"), req, sourceIP(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// RequestChange handles POST /api/v1/leases/{id}/changes
func (h *Handlers) RequestChange(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[lease.ChangeRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	l, err := h.Leases.RequestChange(r.Context(), actor, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ResolveChange handles POST /api/v1/leases/{id}/changes/{index}/resolve
func (h *Handlers) ResolveChange(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(urlParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, KindValidation, "change index must be an integer")
		return
	}
	req, ok := readJSON[struct {
		ExpectedVersion int `json:"expected_version"`
	}](w, r, h.BodyLimit)
	if !ok {
		return
	}

	l, err := h.Leases.ResolveChange(r.Context(), actor, urlParam(r, "id"), index, req.ExpectedVersion)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// LeaseHistory handles GET /api/v1/leases/{id}/history
func (h *Handlers) LeaseHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	history, err := h.Leases.History(r.Context(), actor, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// UploadSignatureImage handles POST /api/v1/signatures/images with a raw
// PNG or JPEG body.
func (h *Handlers) UploadSignatureImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	limit := h.ImageLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	// One extra byte lets the service see the oversize image and reject it.
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, KindValidation, "failed to read image")
		return
	}

	obj, err := h.Leases.UploadSignatureImage(r.Context(), actor, data)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// GetSignatureImage handles GET /api/v1/signatures/images/{key}
func (h *Handlers) GetSignatureImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	data, contentType, err := h.Leases.SignatureImage(r.Context(), urlParam(r, "key"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SweepExpired handles POST /api/v1/admin/sweep
func (h *Handlers) SweepExpired(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, KindUnavailable, "expiry sweep is disabled")
		return
	}
	res, err := h.Sweeper.SweepOnce(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready and reports every dependency check.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := map[string]string{}
	for name, check := range h.Checks {
		if err := check(r.Context()); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": report})
}
