// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonFromError(t *testing.T) {
	base := errors.New("redis: connection refused")
	err := NewReasonError(RStorage, "ledger unavailable", base)

	reason, detail, ok := ReasonFromError(err)
	require.True(t, ok)
	assert.Equal(t, RStorage, reason)
	assert.Equal(t, "ledger unavailable", detail)
	assert.True(t, errors.Is(err, base), "wrapped cause must stay reachable")
}

func TestReasonSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("acquire: %w", NewReasonError(RConflict, "seats taken", nil))
	reason, _, ok := ReasonFromError(err)
	require.True(t, ok)
	assert.Equal(t, RConflict, reason)
	assert.True(t, IsReason(err, RConflict))
	assert.False(t, IsReason(err, RStale))
}

func TestSeatsFromError(t *testing.T) {
	err := NewSeatsError(RConflict, "2 seats unavailable", []string{"A-1", "B-2"})
	assert.Equal(t, []string{"A-1", "B-2"}, SeatsFromError(err))

	wrapped := fmt.Errorf("acquire failed: %w", err)
	assert.Equal(t, []string{"A-1", "B-2"}, SeatsFromError(wrapped))

	assert.Nil(t, SeatsFromError(errors.New("plain")))
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ReasonCode
	}{
		{"nil", nil, RNone},
		{"typed", NewReasonError(RStale, "", nil), RStale},
		{"wrapped typed", fmt.Errorf("op: %w", NewReasonError(RNotFound, "", nil)), RNotFound},
		{"canceled", context.Canceled, RCancelled},
		{"deadline", fmt.Errorf("ledger: %w", context.DeadlineExceeded), RTimeout},
		{"unknown", errors.New("boom"), RUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, _ := ClassifyReason(tt.err)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestClassifyReasonTruncatesDetail(t *testing.T) {
	long := strings.Repeat("x", 500) + "\nsecond line"
	_, detail := ClassifyReason(errors.New(long))
	assert.LessOrEqual(t, len(detail), 164)
	assert.NotContains(t, detail, "\n")
}
