// SPDX-License-Identifier: MIT

// Package coordinator orchestrates the hold lifecycle: atomic multi-seat
// acquisition against the lock ledger, durable recording in the shadow store,
// fenced extend/release/convert mutations and change event publication.
//
// Every operation is a cooperative pipeline with explicit compensation:
// validate, replay idempotency, precheck, reserve version, ledger mutation,
// shadow commit, publish. The ledger is the only serialization point; the
// coordinator itself holds no seat-level locks.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/config"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
	"github.com/IsakPar/the-lml-sub003/internal/log"
	"github.com/IsakPar/the-lml-sub003/internal/metrics"
	"github.com/IsakPar/the-lml-sub003/internal/ratelimit"
	"github.com/IsakPar/the-lml-sub003/internal/telemetry"
)

// rollbackBudget bounds the detached compensation that runs when the caller's
// context died between ledger success and shadow commit.
const rollbackBudget = 2 * time.Second

// Coordinator wires the ports together. Fields are set once at construction
// and never mutated, so the struct is safe for concurrent use.
type Coordinator struct {
	Ledger ledger.Ledger
	Shadow shadow.Store
	Bus    bus.Bus
	Seq    *bus.Sequencer
	Limits config.Limits
	// Budget is optional; nil disables the per-owner acquire budget.
	Budget *ratelimit.OwnerBudget

	// Now is swappable for tests.
	Now func() time.Time

	logger zerolog.Logger
	tracer trace.Tracer
}

func New(l ledger.Ledger, s shadow.Store, b bus.Bus, seq *bus.Sequencer, limits config.Limits, budget *ratelimit.OwnerBudget) *Coordinator {
	return &Coordinator{
		Ledger: l,
		Shadow: s,
		Bus:    b,
		Seq:    seq,
		Limits: limits,
		Budget: budget,
		Now:    time.Now,
		logger: log.WithComponent("coordinator"),
		tracer: telemetry.Tracer("coordinator"),
	}
}

// AcquireRequest describes one all-or-none seat acquisition.
type AcquireRequest struct {
	Tenant         string
	Performance    string
	Seats          []string
	Owner          string
	TTL            time.Duration // 0 selects the configured default
	IdempotencyKey string
}

// AcquireResult is the client-visible outcome of a successful acquire. It is
// stored verbatim in the idempotency registry so a replay answers
// byte-identically.
type AcquireResult struct {
	HoldID    string    `json:"hold_id"`
	Version   int64     `json:"version"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Seats     []string  `json:"seats"`
}

// Acquire locks every requested seat or none of them.
func (c *Coordinator) Acquire(ctx context.Context, req AcquireRequest) (res *AcquireResult, err error) {
	start := c.Now()
	defer func() { c.record("acquire", start, err) }()

	ctx, span := c.tracer.Start(ctx, "coordinator.acquire")
	defer span.End()
	span.SetAttributes(telemetry.HoldAttributes(req.Tenant, req.Performance, "", len(req.Seats))...)

	if req.TTL == 0 {
		req.TTL = c.Limits.TTLDefault
	}
	if err = c.validateAcquire(req); err != nil {
		return nil, err
	}
	if c.Budget != nil && !c.Budget.Allow(req.Tenant, req.Owner) {
		return nil, model.NewReasonError(model.RRateLimited, "owner acquire budget exhausted", nil)
	}

	fp := fingerprint("acquire", req.Tenant, req.Performance, req.Owner,
		fmt.Sprint(req.TTL.Milliseconds()), strings.Join(req.Seats, ","))
	if replay, rerr := replayIdempotent[AcquireResult](ctx, c.Shadow, req.Tenant, req.IdempotencyKey, "acquire", fp); rerr != nil || replay != nil {
		return replay, rerr
	}

	// Blocked and sold seats conflict before any ledger state is observed.
	blocked, sold, err := c.Shadow.BlockedOrSold(ctx, req.Tenant, req.Performance, req.Seats)
	if err != nil {
		return nil, err
	}
	if len(blocked)+len(sold) > 0 {
		conflicts := orderedUnion(req.Seats, blocked, sold)
		metrics.RecordAcquireConflict(len(conflicts))
		return nil, model.NewSeatsError(model.RConflict, "seats blocked or sold", conflicts)
	}

	version, err := c.Shadow.NextVersion(ctx, req.Tenant, req.Performance)
	if err != nil {
		return nil, err
	}
	holdID := uuid.NewString()
	now := c.Now()
	keys := model.HoldKeys(req.Tenant, req.Performance, req.Seats)

	acq, err := c.Ledger.AcquireAllOrNone(ctx, keys, req.Owner, version, req.TTL, now)
	if err != nil {
		return nil, err
	}
	if !acq.OK {
		conflicts := seatsFromKeys(acq.ConflictKeys)
		metrics.RecordAcquireConflict(len(conflicts))
		return nil, model.NewSeatsError(model.RConflict, "seats held by another owner", conflicts)
	}

	hold := &model.Hold{
		ID:          holdID,
		Tenant:      req.Tenant,
		Performance: req.Performance,
		Owner:       req.Owner,
		Version:     version,
		State:       model.HoldActive,
		Seats:       append([]string(nil), req.Seats...),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(req.TTL),
	}
	hold.AppendEvent("created", now, "")

	if err = c.Shadow.CreateHold(ctx, hold); err != nil {
		// The locks exist but the durable record does not: undo the ledger
		// writes so the failed acquire is never observable as a hold.
		c.rollbackKeys(ctx, keys, req.Owner, version)
		return nil, model.NewReasonError(model.RStorage, "hold could not be persisted", err)
	}

	c.supersedeOverlapping(ctx, hold)
	c.publishSeats(ctx, hold, model.EventSeatLocked, hold.Seats)
	metrics.ActiveHolds.Inc()

	res = &AcquireResult{
		HoldID:    holdID,
		Version:   version,
		Token:     model.FormatToken(version, req.Owner),
		ExpiresAt: hold.ExpiresAt,
		Seats:     hold.Seats,
	}
	c.storeIdempotent(ctx, req.Tenant, req.IdempotencyKey, "acquire", fp, holdID, res)
	return res, nil
}

// ExtendRequest prolongs a hold by Additional. The caller proves ownership
// with the fencing token handed out by Acquire.
type ExtendRequest struct {
	Tenant     string
	HoldID     string
	Token      string
	Additional time.Duration
}

// Extend refreshes the ledger TTL of every seat of the hold. Any seat whose
// fence no longer matches makes the whole call stale; TTL bumps already
// applied to still-owned seats stand, which is harmless because only this
// owner could have extended them.
func (c *Coordinator) Extend(ctx context.Context, req ExtendRequest) (expiresAt time.Time, err error) {
	start := c.Now()
	defer func() { c.record("extend", start, err) }()

	ctx, span := c.tracer.Start(ctx, "coordinator.extend")
	defer span.End()

	if req.Additional <= 0 {
		return time.Time{}, model.NewReasonError(model.RValidation, "additional time must be positive", nil)
	}
	hold, err := c.loadFenced(ctx, req.Tenant, req.HoldID, req.Token, "extend")
	if err != nil {
		return time.Time{}, err
	}

	now := c.Now()
	newExpires := hold.ExpiresAt.Add(req.Additional)
	if newExpires.Sub(hold.CreatedAt) > c.Limits.HoldLifeMax {
		metrics.IncStaleToken("extend")
		return time.Time{}, model.NewReasonError(model.RStale,
			fmt.Sprintf("extension exceeds the maximum hold lifetime of %s", c.Limits.HoldLifeMax), nil)
	}

	ttl := newExpires.Sub(now)
	var staleSeats []string
	for _, seat := range hold.Seats {
		key := model.HoldKey(req.Tenant, hold.Performance, seat)
		out, lerr := c.Ledger.ExtendIfOwner(ctx, key, hold.Owner, hold.Version, ttl)
		if lerr != nil {
			return time.Time{}, lerr
		}
		if out == ledger.NOOP {
			staleSeats = append(staleSeats, seat)
		}
	}
	if len(staleSeats) > 0 {
		metrics.IncStaleToken("extend")
		return time.Time{}, model.NewSeatsError(model.RStale, "hold expired or superseded on some seats", staleSeats)
	}

	_, err = c.Shadow.UpdateHold(ctx, req.Tenant, req.HoldID, func(h *model.Hold) error {
		if !h.State.OccupiesSeats() {
			return model.NewReasonError(model.RGone, "hold is "+string(h.State), nil)
		}
		h.State = model.HoldExtended
		h.ExpiresAt = newExpires
		h.UpdatedAt = now
		h.AppendEvent("extended", now, "until "+newExpires.UTC().Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newExpires, nil
}

// ReleaseRequest gives seats back before expiry.
type ReleaseRequest struct {
	Tenant string
	HoldID string
	Token  string
	Reason string
}

// Release deletes the hold's ledger keys and transitions it to RELEASED.
// Seats that already expired are indistinguishable from released ones for
// the caller and are not surfaced.
func (c *Coordinator) Release(ctx context.Context, req ReleaseRequest) (released []string, err error) {
	start := c.Now()
	defer func() { c.record("release", start, err) }()

	ctx, span := c.tracer.Start(ctx, "coordinator.release")
	defer span.End()

	hold, err := c.releaseLocked(ctx, req.Tenant, req.HoldID, req.Token, "release", req.Reason)
	if err != nil {
		return nil, err
	}
	c.publishSeats(ctx, hold, model.EventSeatReleased, hold.Seats)
	return hold.Seats, nil
}

// Rollback undoes a hold on behalf of an internal caller compensating a
// downstream failure. It mirrors Release but publishes nothing: the hold is
// treated as if it never happened.
func (c *Coordinator) Rollback(ctx context.Context, req ReleaseRequest) (err error) {
	start := c.Now()
	defer func() { c.record("rollback", start, err) }()

	_, err = c.releaseLocked(ctx, req.Tenant, req.HoldID, req.Token, "rollback", req.Reason)
	return err
}

func (c *Coordinator) releaseLocked(ctx context.Context, tenant, holdID, token, op, reason string) (*model.Hold, error) {
	hold, err := c.loadFenced(ctx, tenant, holdID, token, op)
	if err != nil {
		return nil, err
	}
	for _, seat := range hold.Seats {
		key := model.HoldKey(tenant, hold.Performance, seat)
		out, lerr := c.Ledger.ReleaseIfOwner(ctx, key, hold.Owner, hold.Version)
		if lerr != nil {
			return nil, lerr
		}
		if out == ledger.NOOP {
			c.logger.Debug().Str("hold_id", holdID).Str("seat_id", seat).Str("op", op).
				Msg("seat already gone from the ledger")
		}
	}

	now := c.Now()
	eventType := "released"
	if op == "rollback" {
		eventType = "rolled_back"
	}
	updated, err := c.Shadow.UpdateHold(ctx, tenant, holdID, func(h *model.Hold) error {
		if !h.State.OccupiesSeats() {
			return model.NewReasonError(model.RGone, "hold is "+string(h.State), nil)
		}
		h.State = model.HoldReleased
		h.UpdatedAt = now
		h.AppendEvent(eventType, now, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ActiveHolds.Dec()
	return updated, nil
}

// ConvertRequest turns a hold into sold inventory.
type ConvertRequest struct {
	Tenant         string
	HoldID         string
	Token          string
	OrderID        string
	IdempotencyKey string
}

// ConvertResult is stored in the idempotency registry like AcquireResult.
type ConvertResult struct {
	HoldID  string   `json:"hold_id"`
	OrderID string   `json:"order_id"`
	Seats   []string `json:"seats"`
}

// Convert marks every seat of the hold as sold under one shadow transaction,
// then clears the ledger keys. A ledger failure after the commit is benign:
// the sold rows already shadow the seats and the locks expire on their own.
func (c *Coordinator) Convert(ctx context.Context, req ConvertRequest) (res *ConvertResult, err error) {
	start := c.Now()
	defer func() { c.record("convert", start, err) }()

	ctx, span := c.tracer.Start(ctx, "coordinator.convert")
	defer span.End()

	if req.OrderID == "" {
		return nil, model.NewReasonError(model.RValidation, "order_id must not be empty", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.Limits.ConvertTimeout)
	defer cancel()

	fp := fingerprint("convert", req.Tenant, req.HoldID, req.OrderID)
	if replay, rerr := replayIdempotent[ConvertResult](ctx, c.Shadow, req.Tenant, req.IdempotencyKey, "convert", fp); rerr != nil || replay != nil {
		return replay, rerr
	}

	hold, err := c.loadFenced(ctx, req.Tenant, req.HoldID, req.Token, "convert")
	if err != nil {
		return nil, err
	}

	converted, err := c.Shadow.ConvertHold(ctx, req.Tenant, req.HoldID, hold.Version, req.OrderID, c.Now())
	if err != nil {
		return nil, err
	}

	for _, seat := range converted.Seats {
		key := model.HoldKey(req.Tenant, converted.Performance, seat)
		if _, lerr := c.Ledger.ReleaseIfOwner(ctx, key, converted.Owner, converted.Version); lerr != nil {
			c.logger.Warn().Err(lerr).Str("hold_id", req.HoldID).Str("seat_id", seat).
				Msg("sold seat left in the ledger until TTL expiry")
		}
	}

	c.publishSeats(ctx, converted, model.EventSeatSold, converted.Seats)
	metrics.ActiveHolds.Dec()

	res = &ConvertResult{HoldID: converted.ID, OrderID: req.OrderID, Seats: converted.Seats}
	c.storeIdempotent(ctx, req.Tenant, req.IdempotencyKey, "convert", fp, converted.ID, res)
	return res, nil
}

// GetHold returns the shadow record without the fencing token.
func (c *Coordinator) GetHold(ctx context.Context, tenant, holdID string) (*model.Hold, error) {
	hold, err := c.Shadow.GetHold(ctx, tenant, holdID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, model.NewReasonError(model.RNotFound, "hold not found", nil)
	}
	return hold, nil
}

// Block withdraws seats from sale. Seats with an active lock or a sold
// record conflict; blocking is only valid for currently free inventory.
func (c *Coordinator) Block(ctx context.Context, tenant, performance string, seats []string, reason string) (err error) {
	start := c.Now()
	defer func() { c.record("block", start, err) }()

	if err = model.ValidateSeats(seats, c.Limits.MaxSeatsPerRequest); err != nil {
		return err
	}
	_, sold, err := c.Shadow.BlockedOrSold(ctx, tenant, performance, seats)
	if err != nil {
		return err
	}
	if len(sold) > 0 {
		return model.NewSeatsError(model.RConflict, "seats already sold", sold)
	}
	held, err := c.Ledger.ProbeHeld(ctx, model.HoldKeys(tenant, performance, seats))
	if err != nil {
		return err
	}
	if len(held) > 0 {
		return model.NewSeatsError(model.RConflict, "seats currently held", seatsFromKeys(mapKeys(held)))
	}

	now := c.Now()
	blocks := make([]model.Block, len(seats))
	for i, seat := range seats {
		blocks[i] = model.Block{Tenant: tenant, Performance: performance, Seat: seat, Reason: reason, CreatedAt: now}
	}
	if err = c.Shadow.PutBlocks(ctx, blocks); err != nil {
		return err
	}
	c.publishSeats(ctx, &model.Hold{Tenant: tenant, Performance: performance}, model.EventSeatBlocked, seats)
	return nil
}

// Unblock lifts operator blocks and reports which seats actually changed.
func (c *Coordinator) Unblock(ctx context.Context, tenant, performance string, seats []string) (removed []string, err error) {
	start := c.Now()
	defer func() { c.record("unblock", start, err) }()

	if err = model.ValidateSeats(seats, c.Limits.MaxSeatsPerRequest); err != nil {
		return nil, err
	}
	removed, err = c.Shadow.DeleteBlocks(ctx, tenant, performance, seats)
	if err != nil {
		return nil, err
	}
	c.publishSeats(ctx, &model.Hold{Tenant: tenant, Performance: performance}, model.EventSeatUnblocked, removed)
	return removed, nil
}

// supersedeOverlapping settles earlier occupying holds of the same owner
// whose seats this acquire just re-locked at a newer version. The ledger
// already overwrote the shared keys, so without this a seat would sit in two
// occupying holds at once and the stale one would later emit a bogus
// seat.expired. Shared seats get no event (they never stopped being held);
// seats the old hold loses without the new one taking them over are released
// from the ledger and announced.
func (c *Coordinator) supersedeOverlapping(ctx context.Context, hold *model.Hold) {
	others, err := c.Shadow.ActiveHoldsFor(ctx, hold.Tenant, hold.Performance)
	if err != nil {
		c.logger.Warn().Err(err).Str("hold_id", hold.ID).Msg("supersede scan failed; reaper will settle leftovers")
		return
	}
	taken := make(map[string]struct{}, len(hold.Seats))
	for _, seat := range hold.Seats {
		taken[seat] = struct{}{}
	}

	now := c.Now()
	for _, other := range others {
		if other.ID == hold.ID || other.Owner != hold.Owner || !overlaps(taken, other.Seats) {
			continue
		}
		var leftover []string
		for _, seat := range other.Seats {
			if _, ok := taken[seat]; !ok {
				leftover = append(leftover, seat)
			}
		}
		for _, seat := range leftover {
			key := model.HoldKey(other.Tenant, other.Performance, seat)
			if _, lerr := c.Ledger.ReleaseIfOwner(ctx, key, other.Owner, other.Version); lerr != nil {
				c.logger.Warn().Err(lerr).Str("seat_id", seat).Msg("superseded seat left in the ledger until TTL expiry")
			}
		}
		_, uerr := c.Shadow.UpdateHold(ctx, other.Tenant, other.ID, func(h *model.Hold) error {
			if !h.State.OccupiesSeats() {
				return model.NewReasonError(model.RGone, "hold already settled", nil)
			}
			h.State = model.HoldReleased
			h.UpdatedAt = now
			h.AppendEvent("superseded", now, "re-acquired as "+hold.ID)
			return nil
		})
		if uerr != nil {
			if !model.IsReason(uerr, model.RGone) {
				c.logger.Warn().Err(uerr).Str("hold_id", other.ID).Msg("superseded hold not settled")
			}
			continue
		}
		c.publishSeats(ctx, other, model.EventSeatReleased, leftover)
		metrics.ActiveHolds.Dec()
	}
}

func overlaps(set map[string]struct{}, seats []string) bool {
	for _, seat := range seats {
		if _, ok := set[seat]; ok {
			return true
		}
	}
	return false
}

// --- pipeline helpers ---

func (c *Coordinator) validateAcquire(req AcquireRequest) error {
	if err := model.ValidateID("tenant_id", req.Tenant); err != nil {
		return err
	}
	if err := model.ValidateID("performance_id", req.Performance); err != nil {
		return err
	}
	if err := model.ValidateOwner(req.Owner, c.Limits.OwnerMaxLength); err != nil {
		return err
	}
	if err := model.ValidateSeats(req.Seats, c.Limits.MaxSeatsPerRequest); err != nil {
		return err
	}
	if req.TTL < time.Millisecond || req.TTL > c.Limits.TTLMax {
		return model.NewReasonError(model.RValidation,
			fmt.Sprintf("ttl must lie in [1ms, %s]", c.Limits.TTLMax), nil)
	}
	return nil
}

// loadFenced resolves a hold and verifies the caller's fencing token against
// it. Terminal holds surface as gone so transports can distinguish them from
// stale tokens.
func (c *Coordinator) loadFenced(ctx context.Context, tenant, holdID, token, op string) (*model.Hold, error) {
	version, ownerHash, err := model.ParseToken(token)
	if err != nil {
		return nil, model.NewReasonError(model.RValidation, err.Error(), nil)
	}
	hold, err := c.Shadow.GetHold(ctx, tenant, holdID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, model.NewReasonError(model.RNotFound, "hold not found", nil)
	}
	if !model.TokenMatches(version, ownerHash, hold) {
		metrics.IncStaleToken(op)
		return nil, model.NewReasonError(model.RStale, "hold token does not match", nil)
	}
	if !hold.State.OccupiesSeats() {
		return nil, model.NewReasonError(model.RGone, "hold is "+string(hold.State), nil)
	}
	return hold, nil
}

// rollbackKeys compensates ledger writes on a detached context so a dead
// request context cannot leak locks.
func (c *Coordinator) rollbackKeys(ctx context.Context, keys []string, owner string, version int64) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackBudget)
	defer cancel()
	for _, key := range keys {
		if _, err := c.Ledger.RollbackIfOwner(rbCtx, key, owner, version); err != nil {
			c.logger.Error().Err(err).Str("key", key).
				Msg("rollback failed; the reaper will collect the lock on expiry")
		}
	}
}

func (c *Coordinator) publishSeats(ctx context.Context, hold *model.Hold, kind string, seats []string) {
	now := c.Now()
	for _, seat := range seats {
		ev := bus.Event{
			Tenant:      hold.Tenant,
			Performance: hold.Performance,
			Seat:        seat,
			HoldID:      hold.ID,
			Kind:        kind,
			Sequence:    c.Seq.Next(hold.Tenant, hold.Performance),
			At:          now,
		}
		if err := c.Bus.Publish(ctx, ev); err != nil {
			// Event delivery never fails the mutation; subscribers reconcile
			// through snapshots.
			c.logger.Warn().Err(err).Str("kind", kind).Str("seat_id", seat).Msg("event publish failed")
		}
	}
}

func (c *Coordinator) record(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		reason, _ := model.ClassifyReason(err)
		outcome = string(reason)
	}
	metrics.RecordOperation(op, outcome, c.Now().Sub(start).Seconds())
}

// replayIdempotent returns the stored result for key, a mismatch error, or
// (nil, nil) when the request is fresh.
func replayIdempotent[T any](ctx context.Context, store shadow.Store, tenant, key, op, fp string) (*T, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := store.GetIdempotency(ctx, tenant, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Op != op || rec.Fingerprint != fp {
		return nil, model.NewReasonError(model.RIdempotencyMismatch,
			"idempotency key was already used with a different request", nil)
	}
	var result T
	if err := json.Unmarshal(rec.Payload, &result); err != nil {
		return nil, model.NewReasonError(model.RInternal, "stored idempotency payload is unreadable", err)
	}
	metrics.IncIdempotentReplay()
	return &result, nil
}

func (c *Coordinator) storeIdempotent(ctx context.Context, tenant, key, op, fp, holdID string, result any) {
	if key == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("idempotency payload encoding failed")
		return
	}
	rec := &shadow.IdempotencyRecord{
		Op:          op,
		Fingerprint: fp,
		HoldID:      holdID,
		Payload:     payload,
		ExpiresAt:   c.Now().Add(c.Limits.IdempotencyTTL),
	}
	if err := c.Shadow.PutIdempotency(ctx, tenant, key, rec); err != nil {
		// The mutation already happened; a lost record only costs the caller
		// a conflict on retry instead of a replay.
		c.logger.Warn().Err(err).Str("op", op).Msg("idempotency record not persisted")
	}
}

func fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func seatsFromKeys(keys []string) []string {
	seats := make([]string, 0, len(keys))
	for _, key := range keys {
		if seat, ok := model.SeatFromKey(key); ok {
			seats = append(seats, seat)
		}
	}
	return seats
}

func mapKeys(m map[string]model.LockRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// orderedUnion returns the members of request that appear in any of the hit
// sets, preserving request order.
func orderedUnion(request []string, hits ...[]string) []string {
	set := make(map[string]struct{})
	for _, hit := range hits {
		for _, s := range hit {
			set[s] = struct{}{}
		}
	}
	var out []string
	for _, s := range request {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
