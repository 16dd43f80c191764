// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/api/middleware"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/log"
)

// Stable problem type URIs. Clients branch on these, never on detail text.
const (
	typeValidation     = "urn:ticketing:inventory:validation"
	typeConflict       = "urn:ticketing:inventory:conflict"
	typeExpired        = "urn:ticketing:inventory:expired"
	typeNotFound       = "urn:ticketing:inventory:not-found"
	typeInvalidIdemKey = "urn:ticketing:inventory:invalid-idempotency-key"
	typeRateLimited    = "urn:ticketing:inventory:rate-limited"
	typeUnavailable    = "urn:ticketing:inventory:unavailable"
	typeInternal       = "urn:ticketing:inventory:internal"
)

// writeProblem writes an RFC 7807 problem details response. Extras land at
// the top level; reserved member names are protected.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string, extra map[string]any) {
	res := map[string]any{
		"type":   problemType,
		"title":  title,
		"status": status,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if r != nil {
		res["instance"] = r.URL.EscapedPath()
		if reqID := log.RequestIDFromContext(r.Context()); reqID != "" {
			res["requestId"] = reqID
		}
	}
	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance":
			continue
		}
		res[k] = v
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Error().Err(err).
			Str("type", problemType).Msg("failed to encode problem response")
	}
}

// writeError maps an engine error to its problem representation. The mapping
// is part of the client contract: conflicts carry conflictSeatIds, stale
// tokens answer 409 expired, settled holds answer 410.
func writeError(w http.ResponseWriter, r *http.Request, err error, retryAfter time.Duration) {
	reason, detail := model.ClassifyReason(err)

	switch reason {
	case model.RValidation:
		writeProblem(w, r, http.StatusUnprocessableEntity, typeValidation, "Validation Failed", detail, nil)
	case model.RConflict:
		writeProblem(w, r, http.StatusConflict, typeConflict, "Seat Conflict", detail, map[string]any{
			"conflictSeatIds": seatIDsOrEmpty(err),
		})
	case model.RStale:
		extra := map[string]any{}
		if seats := model.SeatsFromError(err); len(seats) > 0 {
			extra["staleSeatIds"] = seats
		}
		writeProblem(w, r, http.StatusConflict, typeExpired, "Hold Expired Or Superseded", detail, extra)
	case model.RGone:
		writeProblem(w, r, http.StatusGone, typeExpired, "Hold Settled", detail, nil)
	case model.RNotFound:
		writeProblem(w, r, http.StatusNotFound, typeNotFound, "Not Found", detail, nil)
	case model.RIdempotencyMismatch:
		writeProblem(w, r, http.StatusUnprocessableEntity, typeInvalidIdemKey, "Invalid Idempotency Key", detail, nil)
	case model.RRateLimited:
		if retryAfter > 0 {
			w.Header().Set(middleware.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())))
		}
		writeProblem(w, r, http.StatusTooManyRequests, typeRateLimited, "Too Many Requests", detail, nil)
	case model.RTimeout, model.RCancelled, model.RStorage:
		writeProblem(w, r, http.StatusServiceUnavailable, typeUnavailable, "Temporarily Unavailable", detail, nil)
	default:
		writeProblem(w, r, http.StatusInternalServerError, typeInternal, "Internal Server Error", "", nil)
	}
}

// seatIDsOrEmpty keeps conflictSeatIds an array, never null.
func seatIDsOrEmpty(err error) []string {
	if seats := model.SeatsFromError(err); seats != nil {
		return seats
	}
	return []string{}
}

// writeBadRequest covers transport-level failures: unreadable JSON, missing
// required headers. Semantic validation of well-formed requests answers 422.
func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, typeValidation, "Bad Request", detail, nil)
}
