// SPDX-License-Identifier: MIT

// Package reaper reconciles lazily-expired ledger entries with the shadow
// store. The ledger drops its keys on TTL by itself; the reaper's job is the
// durable side: transition the shadow hold to EXPIRED and emit seat.expired
// exactly once per seat.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
	"github.com/IsakPar/the-lml-sub003/internal/log"
	"github.com/IsakPar/the-lml-sub003/internal/metrics"
)

// Hint names a hold whose ledger keys were observed gone before its expiry
// was swept. Hints only accelerate the sweep; dropping one is safe.
type Hint struct {
	Tenant string
	HoldID string
}

// hintQueueDepth bounds the hint channel. The ticker sweep catches anything
// that overflows.
const hintQueueDepth = 256

// Config carries the sweep cadence and the expiry grace. A hold is only
// swept once it has been expired for at least Grace, so an in-flight extend
// racing the deadline never loses to the reaper.
type Config struct {
	Interval time.Duration
	Grace    time.Duration
}

// Reaper sweeps expired holds on a ticker and on hints.
type Reaper struct {
	Ledger ledger.Ledger
	Shadow shadow.Store
	Bus    bus.Bus
	Seq    *bus.Sequencer
	Conf   Config

	// Now is swappable for tests.
	Now func() time.Time

	hints  chan Hint
	logger zerolog.Logger
}

func New(l ledger.Ledger, s shadow.Store, b bus.Bus, seq *bus.Sequencer, conf Config) *Reaper {
	if conf.Interval <= 0 {
		conf.Interval = time.Second
	}
	if conf.Grace <= 0 {
		conf.Grace = 5 * time.Second
	}
	return &Reaper{
		Ledger: l,
		Shadow: s,
		Bus:    b,
		Seq:    seq,
		Conf:   conf,
		Now:    time.Now,
		hints:  make(chan Hint, hintQueueDepth),
		logger: log.WithComponent("reaper"),
	}
}

// Hints returns the channel the projector pushes into. Senders must use a
// non-blocking send.
func (r *Reaper) Hints() chan<- Hint {
	return r.hints
}

// Offer pushes a hint without blocking; a full queue drops it.
func (r *Reaper) Offer(h Hint) {
	select {
	case r.hints <- h:
	default:
	}
}

// Run sweeps until ctx is cancelled. Hints between ticks are served
// immediately; the periodic sweep remains the safety net for everything the
// hint path misses.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Conf.Interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.Conf.Interval).Dur("grace", r.Conf.Grace).
		Msg("expiry reaper started")

	for {
		select {
		case <-ctx.Done():
			return
		case h := <-r.hints:
			r.sweepHint(ctx, h)
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one full sweep pass. Deterministic, suitable
// for unit testing.
func (r *Reaper) SweepOnce(ctx context.Context) {
	start := r.Now()
	cutoff := start.Add(-r.Conf.Grace)

	var candidates []*model.Hold
	err := r.Shadow.ScanExpiredHolds(ctx, cutoff, func(h *model.Hold) error {
		candidates = append(candidates, h)
		return nil
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("expiry scan failed")
		metrics.RecordSweep("error", r.Now().Sub(start).Seconds(), 0)
		return
	}

	expired := 0
	for _, h := range candidates {
		ok, err := r.expireHold(ctx, h)
		if err != nil {
			r.logger.Warn().Err(err).Str("hold_id", h.ID).Msg("hold expiry failed")
			continue
		}
		if ok {
			expired++
		}
	}

	if pruned, err := r.Shadow.PruneIdempotency(ctx, start); err != nil {
		r.logger.Warn().Err(err).Msg("idempotency prune failed")
	} else if pruned > 0 {
		r.logger.Debug().Int("pruned", pruned).Msg("pruned expired idempotency records")
	}

	metrics.RecordSweep("ok", r.Now().Sub(start).Seconds(), expired)
	if expired > 0 {
		r.logger.Info().Int("expired", expired).Msg("sweep expired holds")
		metrics.ActiveHolds.Sub(float64(expired))
	}
}

func (r *Reaper) sweepHint(ctx context.Context, hint Hint) {
	h, err := r.Shadow.GetHold(ctx, hint.Tenant, hint.HoldID)
	if err != nil {
		r.logger.Warn().Err(err).Str("hold_id", hint.HoldID).Msg("hint lookup failed")
		return
	}
	if h == nil || !h.State.OccupiesSeats() {
		return
	}
	if _, err := r.expireHold(ctx, h); err != nil {
		r.logger.Warn().Err(err).Str("hold_id", h.ID).Msg("hinted expiry failed")
	}
}

// expireHold transitions one hold to EXPIRED when its ledger keys are truly
// gone. A hold any of whose seats is still live in the ledger is left alone;
// the next sweep retries after the lock's own TTL ran out.
func (r *Reaper) expireHold(ctx context.Context, h *model.Hold) (bool, error) {
	keys := model.HoldKeys(h.Tenant, h.Performance, h.Seats)
	held, err := r.Ledger.ProbeHeld(ctx, keys)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if rec, ok := held[key]; ok && rec.Version == h.Version {
			// Still locked at our version: the clock disagrees with the
			// ledger, trust the ledger.
			return false, nil
		}
	}

	now := r.Now()
	updated, err := r.Shadow.UpdateHold(ctx, h.Tenant, h.ID, func(cur *model.Hold) error {
		if !cur.State.OccupiesSeats() {
			// Converted, released or already expired since the scan. The
			// guard makes the transition idempotent across racing sweeps.
			return model.NewReasonError(model.RGone, "hold already settled", nil)
		}
		cur.State = model.HoldExpired
		cur.UpdatedAt = now
		cur.AppendEvent("expired", now, "")
		return nil
	})
	if err != nil {
		if model.IsReason(err, model.RGone) {
			return false, nil
		}
		return false, err
	}

	for _, seat := range updated.Seats {
		if _, live := held[model.HoldKey(updated.Tenant, updated.Performance, seat)]; live {
			// Re-locked at a newer version since this hold was created; the
			// newer hold's lifecycle owns the seat now.
			continue
		}
		ev := bus.Event{
			Tenant:      updated.Tenant,
			Performance: updated.Performance,
			Seat:        seat,
			HoldID:      updated.ID,
			Kind:        model.EventSeatExpired,
			Sequence:    r.Seq.Next(updated.Tenant, updated.Performance),
			At:          now,
		}
		if err := r.Bus.Publish(ctx, ev); err != nil {
			r.logger.Warn().Err(err).Str("seat_id", seat).Msg("seat.expired publish failed")
		}
	}
	return true, nil
}
