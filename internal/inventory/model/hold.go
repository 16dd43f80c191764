// SPDX-License-Identifier: MIT

// Package model defines the domain types of the seat lock engine: holds,
// blocks, sold records, lock keys and the fencing token format.
package model

import "time"

// HoldState is the client-visible lifecycle of a hold.
// Keep these stable: the shadow store and client UX depend on them.
type HoldState string

const (
	HoldActive    HoldState = "ACTIVE"
	HoldExtended  HoldState = "EXTENDED"
	HoldConverted HoldState = "CONVERTED"
	HoldReleased  HoldState = "RELEASED"
	HoldExpired   HoldState = "EXPIRED"
)

// IsTerminal returns true if the state is a final state.
func (s HoldState) IsTerminal() bool {
	switch s {
	case HoldConverted, HoldReleased, HoldExpired:
		return true
	}
	return false
}

// OccupiesSeats reports whether a hold in this state still pins ledger keys.
func (s HoldState) OccupiesSeats() bool {
	return s == HoldActive || s == HoldExtended
}

// Hold is the shadow-store record of one multi-seat reservation. The ledger
// remains authoritative for liveness; this record carries the audit fields.
type Hold struct {
	ID          string
	Tenant      string
	Performance string
	Owner       string
	Version     int64
	State       HoldState
	Seats       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	// OrderID is set once the hold is converted.
	OrderID string
	// Events is the append-only audit trail, oldest first.
	Events []HoldEvent
}

// HoldEvent is one audit entry of a hold. The sequence within a hold is
// total-ordered by At with insertion order as tiebreak.
type HoldEvent struct {
	Type string
	At   time.Time
	Note string
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// freely.
func (h *Hold) Clone() *Hold {
	if h == nil {
		return nil
	}
	dup := *h
	dup.Seats = append([]string(nil), h.Seats...)
	dup.Events = append([]HoldEvent(nil), h.Events...)
	return &dup
}

// AppendEvent records an audit entry on the hold.
func (h *Hold) AppendEvent(kind string, at time.Time, note string) {
	h.Events = append(h.Events, HoldEvent{Type: kind, At: at, Note: note})
}

// Block marks a seat withheld from sale by an operator.
type Block struct {
	Tenant      string
	Performance string
	Seat        string
	Reason      string
	CreatedAt   time.Time
}

// SoldRecord marks a seat permanently sold through a converted hold.
type SoldRecord struct {
	Tenant      string
	Performance string
	Seat        string
	HoldID      string
	OrderID     string
	SoldAt      time.Time
}

// SeatStatus is the projection-level classification of one seat.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatSold      SeatStatus = "sold"
	SeatBlocked   SeatStatus = "blocked"
)
