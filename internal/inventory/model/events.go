// SPDX-License-Identifier: MIT

package model

// Change event kinds published on the bus. Projections are rebuilt from
// these, so the set and their meaning must stay stable.
const (
	EventSeatLocked    = "seat.locked"
	EventSeatReleased  = "seat.released"
	EventSeatExpired   = "seat.expired"
	EventSeatSold      = "seat.sold"
	EventSeatBlocked   = "seat.blocked"
	EventSeatUnblocked = "seat.unblocked"
)
