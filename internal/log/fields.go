// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldTenantID      = "tenant_id"
	FieldOwner         = "owner"

	// Inventory fields
	FieldPerformanceID = "performance_id"
	FieldHoldID        = "hold_id"
	FieldSeatID        = "seat_id"
	FieldSeatCount     = "seat_count"
	FieldVersion       = "version"
	FieldSequence      = "sequence"
	FieldOrderID       = "order_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOutcome   = "outcome"
	FieldScript    = "script"
	FieldAttempt   = "attempt"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
