// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"strings"
)

// idMaxLen bounds tenant, performance and seat identifiers. Owners have
// their own configurable cap.
const idMaxLen = 256

// ValidateID checks a tenant, performance or seat identifier. Identifiers
// are embedded into the key grammar, so the delimiter characters are
// forbidden.
func ValidateID(kind, id string) error {
	if id == "" {
		return NewReasonError(RValidation, fmt.Sprintf("%s must not be empty", kind), nil)
	}
	if len(id) > idMaxLen {
		return NewReasonError(RValidation, fmt.Sprintf("%s exceeds %d characters", kind, idMaxLen), nil)
	}
	if strings.ContainsAny(id, ":{}*?[]") {
		return NewReasonError(RValidation, fmt.Sprintf("%s contains a reserved character", kind), nil)
	}
	for _, c := range id {
		if c < 0x21 || c == 0x7f {
			return NewReasonError(RValidation, fmt.Sprintf("%s contains whitespace or control characters", kind), nil)
		}
	}
	return nil
}

// ValidateOwner checks an owner identity against the configured cap. Owners
// may contain colons; the lock record codec accounts for that.
func ValidateOwner(owner string, maxLen int) error {
	if owner == "" {
		return NewReasonError(RValidation, "owner must not be empty", nil)
	}
	if len(owner) > maxLen {
		return NewReasonError(RValidation, fmt.Sprintf("owner exceeds %d characters", maxLen), nil)
	}
	for _, c := range owner {
		if c < 0x21 || c == 0x7f {
			return NewReasonError(RValidation, "owner contains whitespace or control characters", nil)
		}
	}
	return nil
}

// ValidateSeats checks a seat batch: bounds, per-seat grammar, duplicates.
// Returned seats are the caller's slice, untouched; batch order is part of
// the request contract.
func ValidateSeats(seats []string, maxSeats int) error {
	if len(seats) == 0 {
		return NewReasonError(RValidation, "at least one seat is required", nil)
	}
	if len(seats) > maxSeats {
		return NewReasonError(RValidation, fmt.Sprintf("request exceeds %d seats", maxSeats), nil)
	}
	seen := make(map[string]struct{}, len(seats))
	for _, s := range seats {
		if err := ValidateID("seat_id", s); err != nil {
			return err
		}
		if _, dup := seen[s]; dup {
			return NewReasonError(RValidation, fmt.Sprintf("duplicate seat id %q", s), nil)
		}
		seen[s] = struct{}{}
	}
	return nil
}
