// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"errors"
	"strings"
)

type reasonError struct {
	reason ReasonCode
	detail string
	seats  []string
	err    error
}

func (e *reasonError) Error() string {
	if e.detail != "" {
		return e.detail
	}
	if e.err != nil {
		return e.err.Error()
	}
	return string(e.reason)
}

func (e *reasonError) Unwrap() error {
	return e.err
}

// NewReasonError wraps err with a typed reason and a client-safe detail.
func NewReasonError(reason ReasonCode, detail string, err error) error {
	return &reasonError{reason: reason, detail: detail, err: err}
}

// NewSeatsError wraps a reason that concerns a concrete seat subset, such as
// the conflicting seats of a failed acquire or the NOOP seats of a stale
// extend.
func NewSeatsError(reason ReasonCode, detail string, seats []string) error {
	return &reasonError{reason: reason, detail: detail, seats: append([]string(nil), seats...)}
}

// ReasonFromError extracts the typed reason, when present.
func ReasonFromError(err error) (ReasonCode, string, bool) {
	var rerr *reasonError
	if errors.As(err, &rerr) {
		detail := rerr.detail
		if detail == "" && rerr.err != nil {
			detail = rerr.err.Error()
		}
		return rerr.reason, detail, true
	}
	return "", "", false
}

// SeatsFromError extracts the seat subset attached to a reason, when present.
func SeatsFromError(err error) []string {
	var rerr *reasonError
	if errors.As(err, &rerr) {
		return append([]string(nil), rerr.seats...)
	}
	return nil
}

// ClassifyReason assigns a reason to an arbitrary error. Typed errors keep
// their reason; context errors map to cancellation and timeout; everything
// else is unknown.
func ClassifyReason(err error) (ReasonCode, string) {
	if err == nil {
		return RNone, ""
	}
	if reason, detail, ok := ReasonFromError(err); ok {
		return reason, sanitizeDetail(detail)
	}
	if errors.Is(err, context.Canceled) {
		return RCancelled, ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RTimeout, ""
	}
	return RUnknown, sanitizeDetail(err.Error())
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason ReasonCode) bool {
	got, _, ok := ReasonFromError(err)
	return ok && got == reason
}

func sanitizeDetail(detail string) string {
	if detail == "" {
		return ""
	}
	const maxLen = 160
	clean := strings.ReplaceAll(detail, "\n", " ")
	if len(clean) > maxLen {
		return clean[:maxLen] + "..."
	}
	return clean
}
