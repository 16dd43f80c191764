// SPDX-License-Identifier: MIT

// Package shadow implements the durable record behind the lock ledger: holds
// with their audit trail, operator blocks, sold seats, the idempotency
// registry and the per-performance version allocator.
package shadow

import (
	"context"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
)

// IdempotencyRecord captures a completed mutation so a retried request can be
// answered without re-executing it. Fingerprint is a digest of the request
// body; a replay with a different fingerprint is rejected upstream.
type IdempotencyRecord struct {
	Op          string
	Fingerprint string
	HoldID      string
	Payload     []byte
	ExpiresAt   time.Time
}

// Store is the shadow store port. Every method is tenant-scoped: a tenant can
// never observe or mutate another tenant's rows. Mutations run inside one
// transaction per call.
type Store interface {
	// NextVersion allocates the next monotonic fencing version for a
	// (tenant, performance) scope.
	NextVersion(ctx context.Context, tenant, performance string) (int64, error)

	CreateHold(ctx context.Context, h *model.Hold) error
	// GetHold returns nil, nil when the hold does not exist for the tenant.
	GetHold(ctx context.Context, tenant, holdID string) (*model.Hold, error)
	// UpdateHold applies fn to the stored hold inside a transaction and
	// persists the result. fn returning an error aborts without writing.
	UpdateHold(ctx context.Context, tenant, holdID string, fn func(*model.Hold) error) (*model.Hold, error)

	// ScanExpiredHolds visits every ACTIVE or EXTENDED hold, any tenant,
	// whose expiry lies before cutoff.
	ScanExpiredHolds(ctx context.Context, cutoff time.Time, fn func(*model.Hold) error) error
	// ActiveHoldsFor lists the occupying holds of one performance.
	ActiveHoldsFor(ctx context.Context, tenant, performance string) ([]*model.Hold, error)

	ListBlocks(ctx context.Context, tenant, performance string) (map[string]model.Block, error)
	ListSold(ctx context.Context, tenant, performance string) (map[string]model.SoldRecord, error)
	// BlockedOrSold partitions seats into the subsets that are blocked or
	// sold; seats in neither subset are eligible for locking.
	BlockedOrSold(ctx context.Context, tenant, performance string, seats []string) (blocked, sold []string, err error)

	PutBlocks(ctx context.Context, blocks []model.Block) error
	DeleteBlocks(ctx context.Context, tenant, performance string, seats []string) (removed []string, err error)

	// ConvertHold atomically asserts the hold is still occupying at the given
	// version, inserts one sold row per seat, stamps the order id and
	// transitions the hold to CONVERTED. A sold-row collision aborts the
	// whole transaction.
	ConvertHold(ctx context.Context, tenant, holdID string, version int64, orderID string, at time.Time) (*model.Hold, error)

	GetIdempotency(ctx context.Context, tenant, key string) (*IdempotencyRecord, error)
	PutIdempotency(ctx context.Context, tenant, key string, rec *IdempotencyRecord) error
	// PruneIdempotency drops records expired before now and reports how many.
	PruneIdempotency(ctx context.Context, now time.Time) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
