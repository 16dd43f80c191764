// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IsakPar/the-lml-sub003/internal/api/middleware"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/coordinator"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/log"
)

type acquireBody struct {
	PerformanceID string   `json:"performance_id"`
	Seats         []string `json:"seats"`
	TTLSeconds    int      `json:"ttl_seconds"`
	Owner         string   `json:"owner"`
}

type holdResponse struct {
	HoldID    string    `json:"hold_id"`
	Version   int64     `json:"version"`
	HoldToken string    `json:"hold_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Seats     []string  `json:"seats"`
}

// handleAcquire serves POST /v1/holds.
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var body acquireBody
	if !decodeBody(w, r, &body) {
		return
	}
	idemKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	// The validated X-Owner-Id principal wins; the body field serves
	// service-to-service callers acting on behalf of a user.
	owner := r.Header.Get(middleware.HeaderOwnerID)
	if owner == "" {
		owner = body.Owner
	}

	res, err := s.Coordinator.Acquire(r.Context(), coordinator.AcquireRequest{
		Tenant:         log.TenantIDFromContext(r.Context()),
		Performance:    body.PerformanceID,
		Seats:          body.Seats,
		Owner:          owner,
		TTL:            time.Duration(body.TTLSeconds) * time.Second,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		writeError(w, r, err, s.retryAfter())
		return
	}
	writeJSON(w, http.StatusCreated, holdResponse{
		HoldID:    res.HoldID,
		Version:   res.Version,
		HoldToken: res.Token,
		ExpiresAt: res.ExpiresAt,
		Seats:     res.Seats,
	})
}

type extendBody struct {
	HoldID            string `json:"hold_id"`
	PerformanceID     string `json:"performance_id"`
	AdditionalSeconds int    `json:"additional_seconds"`
	HoldToken         string `json:"hold_token"`
}

// handleExtend serves PATCH /v1/holds.
func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var body extendBody
	if !decodeBody(w, r, &body) {
		return
	}
	token, ok := resolveToken(w, r, body.HoldToken)
	if !ok {
		return
	}

	expiresAt, err := s.Coordinator.Extend(r.Context(), coordinator.ExtendRequest{
		Tenant:     log.TenantIDFromContext(r.Context()),
		HoldID:     body.HoldID,
		Token:      token,
		Additional: time.Duration(body.AdditionalSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expires_at": expiresAt})
}

// handleRelease serves DELETE /v1/holds/{holdID}. The fencing token travels
// in If-Match; DELETE bodies are not portable.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(middleware.HeaderIfMatch)
	if token == "" {
		writeBadRequest(w, r, "missing If-Match header with the hold token")
		return
	}

	released, err := s.Coordinator.Release(r.Context(), coordinator.ReleaseRequest{
		Tenant: log.TenantIDFromContext(r.Context()),
		HoldID: chi.URLParam(r, "holdID"),
		Token:  token,
		Reason: r.URL.Query().Get("reason"),
	})
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released_seats": released})
}

type convertBody struct {
	PerformanceID string `json:"performance_id"`
	HoldToken     string `json:"hold_token"`
	OrderID       string `json:"order_id"`
}

// handleConvert serves POST /v1/holds/{holdID}/convert.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertBody
	if !decodeBody(w, r, &body) {
		return
	}
	idemKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}
	token, ok := resolveToken(w, r, body.HoldToken)
	if !ok {
		return
	}

	res, err := s.Coordinator.Convert(r.Context(), coordinator.ConvertRequest{
		Tenant:         log.TenantIDFromContext(r.Context()),
		HoldID:         chi.URLParam(r, "holdID"),
		Token:          token,
		OrderID:        body.OrderID,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": res.OrderID, "seats": res.Seats})
}

// handleGetHold serves GET /v1/holds/{holdID}. The document never carries
// the fencing token.
func (s *Server) handleGetHold(w http.ResponseWriter, r *http.Request) {
	hold, err := s.Coordinator.GetHold(r.Context(), log.TenantIDFromContext(r.Context()), chi.URLParam(r, "holdID"))
	if err != nil {
		writeError(w, r, err, 0)
		return
	}

	doc := map[string]any{
		"hold_id":        hold.ID,
		"performance_id": hold.Performance,
		"state":          hold.State,
		"seats":          hold.Seats,
		"created_at":     hold.CreatedAt,
		"expires_at":     hold.ExpiresAt,
	}
	if hold.OrderID != "" {
		doc["order_id"] = hold.OrderID
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleAvailability serves GET /v1/performances/{performanceID}/availability.
// With seat_id query params it answers per-seat status including available;
// without, the snapshot of all non-available seats.
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	tenant := log.TenantIDFromContext(r.Context())
	performance := chi.URLParam(r, "performanceID")
	principal := r.Header.Get(middleware.HeaderOwnerID)

	var views any
	var err error
	if seatIDs := r.URL.Query()["seat_id"]; len(seatIDs) > 0 {
		views, err = s.Projector.Status(r.Context(), tenant, performance, seatIDs, principal)
	} else {
		views, err = s.Projector.Snapshot(r.Context(), tenant, performance, principal)
	}
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seats": views})
}

type blocksBody struct {
	Seats  []string `json:"seats"`
	Reason string   `json:"reason"`
}

// handleBlock serves PUT /v1/performances/{performanceID}/blocks.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var body blocksBody
	if !decodeBody(w, r, &body) {
		return
	}
	err := s.Coordinator.Block(r.Context(), log.TenantIDFromContext(r.Context()),
		chi.URLParam(r, "performanceID"), body.Seats, body.Reason)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnblock serves DELETE /v1/performances/{performanceID}/blocks.
func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var body blocksBody
	if !decodeBody(w, r, &body) {
		return
	}
	removed, err := s.Coordinator.Unblock(r.Context(), log.TenantIDFromContext(r.Context()),
		chi.URLParam(r, "performanceID"), body.Seats)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// --- request plumbing ---

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, r, "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

func requireIdempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get(middleware.HeaderIdempotencyKey)
	if key == "" {
		writeBadRequest(w, r, "missing "+middleware.HeaderIdempotencyKey+" header")
		return "", false
	}
	return key, true
}

// resolveToken merges the body token with If-Match. If-Match, when present,
// must agree with the body or the call fails stale before touching the
// ledger.
func resolveToken(w http.ResponseWriter, r *http.Request, bodyToken string) (string, bool) {
	ifMatch := r.Header.Get(middleware.HeaderIfMatch)
	switch {
	case bodyToken == "" && ifMatch == "":
		writeBadRequest(w, r, "missing hold token")
		return "", false
	case bodyToken == "":
		return ifMatch, true
	case ifMatch != "" && ifMatch != bodyToken:
		writeError(w, r, model.NewReasonError(model.RStale, "If-Match does not match the hold token", nil), 0)
		return "", false
	default:
		return bodyToken, true
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
