// SPDX-License-Identifier: MIT

// Package projector merges the lock ledger and the shadow store into the
// availability view of one performance. Precedence per seat is
// sold > blocked > held > available; a snapshot is eventually consistent at
// ledger-TTL granularity.
package projector

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/reaper"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
	"github.com/IsakPar/the-lml-sub003/internal/log"
)

// SeatView is one row of the availability projection. OwnerSelf is only set
// for held seats whose ledger owner is the requesting principal.
type SeatView struct {
	Seat      string           `json:"seat_id"`
	Status    model.SeatStatus `json:"status"`
	OwnerSelf bool             `json:"owner_self,omitempty"`
}

// Projector reads both stores on demand. It holds no state of its own, so a
// single instance serves all tenants.
type Projector struct {
	Ledger ledger.Ledger
	Shadow shadow.Store

	// Reaper receives hints for shadow-active holds whose ledger keys have
	// vanished. Optional.
	Reaper *reaper.Reaper

	logger zerolog.Logger
}

func New(l ledger.Ledger, s shadow.Store, r *reaper.Reaper) *Projector {
	return &Projector{
		Ledger: l,
		Shadow: s,
		Reaper: r,
		logger: log.WithComponent("projector"),
	}
}

// Snapshot lists every seat of the performance that is not available: sold,
// blocked and held seats, sorted by seat id. Seats the engine has never seen
// are implicitly available and not listed; Status answers for those.
func (p *Projector) Snapshot(ctx context.Context, tenant, performance, principal string) ([]SeatView, error) {
	sold, blocked, held, err := p.gather(ctx, tenant, performance)
	if err != nil {
		return nil, err
	}

	seats := make(map[string]struct{}, len(sold)+len(blocked)+len(held))
	for seat := range sold {
		seats[seat] = struct{}{}
	}
	for seat := range blocked {
		seats[seat] = struct{}{}
	}
	for seat := range held {
		seats[seat] = struct{}{}
	}

	views := make([]SeatView, 0, len(seats))
	for seat := range seats {
		views = append(views, p.classify(seat, principal, sold, blocked, held))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Seat < views[j].Seat })
	return views, nil
}

// Status classifies exactly the requested seats, including available ones.
// Order follows the request.
func (p *Projector) Status(ctx context.Context, tenant, performance string, seatIDs []string, principal string) ([]SeatView, error) {
	sold, blocked, held, err := p.gather(ctx, tenant, performance)
	if err != nil {
		return nil, err
	}

	views := make([]SeatView, len(seatIDs))
	for i, seat := range seatIDs {
		views[i] = p.classify(seat, principal, sold, blocked, held)
	}
	return views, nil
}

func (p *Projector) classify(seat, principal string, sold map[string]model.SoldRecord, blocked map[string]model.Block, held map[string]model.LockRecord) SeatView {
	switch {
	case hasKey(sold, seat):
		return SeatView{Seat: seat, Status: model.SeatSold}
	case hasKey(blocked, seat):
		return SeatView{Seat: seat, Status: model.SeatBlocked}
	default:
		if rec, ok := held[seat]; ok {
			return SeatView{Seat: seat, Status: model.SeatHeld, OwnerSelf: principal != "" && rec.Owner == principal}
		}
		return SeatView{Seat: seat, Status: model.SeatAvailable}
	}
}

// gather reads sold, blocked and held state and pushes reaper hints for
// shadow-active holds none of whose seats is still locked.
func (p *Projector) gather(ctx context.Context, tenant, performance string) (map[string]model.SoldRecord, map[string]model.Block, map[string]model.LockRecord, error) {
	sold, err := p.Shadow.ListSold(ctx, tenant, performance)
	if err != nil {
		return nil, nil, nil, err
	}
	blocked, err := p.Shadow.ListBlocks(ctx, tenant, performance)
	if err != nil {
		return nil, nil, nil, err
	}
	held, err := p.Ledger.ScanHeld(ctx, tenant, performance)
	if err != nil {
		return nil, nil, nil, err
	}
	p.hintVanished(ctx, tenant, performance, held)
	return sold, blocked, held, nil
}

func (p *Projector) hintVanished(ctx context.Context, tenant, performance string, held map[string]model.LockRecord) {
	if p.Reaper == nil {
		return
	}
	holds, err := p.Shadow.ActiveHoldsFor(ctx, tenant, performance)
	if err != nil {
		p.logger.Debug().Err(err).Msg("active hold scan for hinting failed")
		return
	}
	for _, h := range holds {
		vanished := true
		for _, seat := range h.Seats {
			if rec, ok := held[seat]; ok && rec.Version == h.Version {
				vanished = false
				break
			}
		}
		if vanished {
			p.Reaper.Offer(reaper.Hint{Tenant: tenant, HoldID: h.ID})
		}
	}
}

func hasKey[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}
