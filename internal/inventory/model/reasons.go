// SPDX-License-Identifier: MIT

package model

// ReasonCode is a compact, typed failure/decision signal.
// Keep these stable: metrics + client error mapping depend on them.
type ReasonCode string

const (
	RNone                ReasonCode = "R_NONE"
	RUnknown             ReasonCode = "R_UNKNOWN"
	RValidation          ReasonCode = "R_VALIDATION"
	RConflict            ReasonCode = "R_CONFLICT"
	RStale               ReasonCode = "R_STALE"
	RGone                ReasonCode = "R_GONE"
	RNotFound            ReasonCode = "R_NOT_FOUND"
	RIdempotencyMismatch ReasonCode = "R_IDEMPOTENCY_MISMATCH"
	RRateLimited         ReasonCode = "R_RATE_LIMITED"
	RTimeout             ReasonCode = "R_TIMEOUT"
	RCancelled           ReasonCode = "R_CANCELLED"
	RStorage             ReasonCode = "R_STORAGE"
	RInternal            ReasonCode = "R_INTERNAL"
)
