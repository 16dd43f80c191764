// SPDX-License-Identifier: MIT

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"plain", "perf-42", false},
		{"unicode seat", "Reihe-7-Ä", false},
		{"empty", "", true},
		{"colon", "t:1", true},
		{"brace", "t{1}", true},
		{"glob star", "seat*", true},
		{"space", "seat 1", true},
		{"control", "seat\x01", true},
		{"too long", strings.Repeat("x", 257), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID("seat_id", tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, IsReason(err, RValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOwnerAllowsColons(t *testing.T) {
	assert.NoError(t, ValidateOwner("user:123:device:abc", 128))
	assert.Error(t, ValidateOwner("", 128))
	assert.Error(t, ValidateOwner(strings.Repeat("o", 129), 128))
	assert.Error(t, ValidateOwner("owner with space", 128))
}

func TestValidateSeats(t *testing.T) {
	assert.NoError(t, ValidateSeats([]string{"A-1", "A-2"}, 25))

	err := ValidateSeats(nil, 25)
	assert.True(t, IsReason(err, RValidation))

	err = ValidateSeats([]string{"A-1", "A-1"}, 25)
	assert.True(t, IsReason(err, RValidation), "duplicates must be rejected")

	batch := make([]string, 26)
	for i := range batch {
		batch[i] = strings.Repeat("s", i+1)
	}
	err = ValidateSeats(batch, 25)
	assert.True(t, IsReason(err, RValidation), "batch above the cap must be rejected")
}

func TestHoldStateHelpers(t *testing.T) {
	assert.False(t, HoldActive.IsTerminal())
	assert.False(t, HoldExtended.IsTerminal())
	assert.True(t, HoldConverted.IsTerminal())
	assert.True(t, HoldReleased.IsTerminal())
	assert.True(t, HoldExpired.IsTerminal())

	assert.True(t, HoldActive.OccupiesSeats())
	assert.True(t, HoldExtended.OccupiesSeats())
	assert.False(t, HoldExpired.OccupiesSeats())
}

func TestHoldClone(t *testing.T) {
	h := &Hold{ID: "h1", Seats: []string{"A-1"}}
	dup := h.Clone()
	dup.Seats[0] = "B-9"
	assert.Equal(t, "A-1", h.Seats[0], "clone must not share the seat slice")

	var nilHold *Hold
	assert.Nil(t, nilHold.Clone())
}
