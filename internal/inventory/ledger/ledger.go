// SPDX-License-Identifier: MIT

// Package ledger implements the authoritative seat lock store. The Redis
// implementation runs one server-side script per operation so a multi-seat
// acquire is atomic; the in-memory implementation mirrors the semantics for
// tests and single-node deployments.
package ledger

import (
	"context"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
)

// Outcome is the logical result of a fenced single-key mutation.
type Outcome string

const (
	OK   Outcome = "OK"
	NOOP Outcome = "NOOP"
)

// AcquireResult reports an all-or-none acquire. When OK is false,
// ConflictKeys lists every key held by a different owner, in request order,
// and nothing was written.
type AcquireResult struct {
	OK           bool
	ConflictKeys []string
}

// Ledger is the lock store port. Implementations must guarantee that
// AcquireAllOrNone observes or mutates the whole key set atomically and that
// the fenced mutations compare version and owner exactly.
type Ledger interface {
	AcquireAllOrNone(ctx context.Context, keys []string, owner string, version int64, ttl time.Duration, now time.Time) (AcquireResult, error)
	ExtendIfOwner(ctx context.Context, key, owner string, version int64, ttl time.Duration) (Outcome, error)
	ReleaseIfOwner(ctx context.Context, key, owner string, version int64) (Outcome, error)
	RollbackIfOwner(ctx context.Context, key, owner string, version int64) (Outcome, error)

	// ScanHeld returns seat -> lock record for every live key of a
	// performance.
	ScanHeld(ctx context.Context, tenant, performance string) (map[string]model.LockRecord, error)
	// ProbeHeld returns key -> lock record for the subset of keys that are
	// live. Absent keys are simply missing from the map.
	ProbeHeld(ctx context.Context, keys []string) (map[string]model.LockRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
