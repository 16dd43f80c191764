// SPDX-License-Identifier: MIT

package shadow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
)

type seatScope struct {
	tenant      string
	performance string
	seat        string
}

type perfScope struct {
	tenant      string
	performance string
}

type holdScope struct {
	tenant string
	holdID string
}

type idemScope struct {
	tenant string
	key    string
}

// MemoryStore implements Store on maps under one mutex. It backs tests and
// the single-process deployment mode.
type MemoryStore struct {
	mu       sync.Mutex
	holds    map[holdScope]*model.Hold
	blocks   map[seatScope]model.Block
	sold     map[seatScope]model.SoldRecord
	idem     map[idemScope]*IdempotencyRecord
	versions map[perfScope]int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		holds:    make(map[holdScope]*model.Hold),
		blocks:   make(map[seatScope]model.Block),
		sold:     make(map[seatScope]model.SoldRecord),
		idem:     make(map[idemScope]*IdempotencyRecord),
		versions: make(map[perfScope]int64),
	}
}

func (s *MemoryStore) NextVersion(ctx context.Context, tenant, performance string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := perfScope{tenant, performance}
	s.versions[scope]++
	return s.versions[scope], nil
}

func (s *MemoryStore) CreateHold(ctx context.Context, h *model.Hold) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[holdScope{h.Tenant, h.ID}] = h.Clone()
	return nil
}

func (s *MemoryStore) GetHold(ctx context.Context, tenant, holdID string) (*model.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[holdScope{tenant, holdID}].Clone(), nil
}

func (s *MemoryStore) UpdateHold(ctx context.Context, tenant, holdID string, fn func(*model.Hold) error) (*model.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.holds[holdScope{tenant, holdID}]
	if !ok {
		return nil, model.NewReasonError(model.RNotFound, "hold not found", nil)
	}
	h := stored.Clone()
	if err := fn(h); err != nil {
		return nil, err
	}
	s.holds[holdScope{tenant, holdID}] = h.Clone()
	return h, nil
}

func (s *MemoryStore) ScanExpiredHolds(ctx context.Context, cutoff time.Time, fn func(*model.Hold) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	var candidates []*model.Hold
	for _, h := range s.holds {
		if h.State.OccupiesSeats() && h.ExpiresAt.Before(cutoff) {
			candidates = append(candidates, h.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt) })
	for _, h := range candidates {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) ActiveHoldsFor(ctx context.Context, tenant, performance string) ([]*model.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var holds []*model.Hold
	for _, h := range s.holds {
		if h.Tenant == tenant && h.Performance == performance && h.State.OccupiesSeats() {
			holds = append(holds, h.Clone())
		}
	}
	return holds, nil
}

func (s *MemoryStore) ListBlocks(ctx context.Context, tenant, performance string) (map[string]model.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Block)
	for scope, b := range s.blocks {
		if scope.tenant == tenant && scope.performance == performance {
			out[scope.seat] = b
		}
	}
	return out, nil
}

func (s *MemoryStore) ListSold(ctx context.Context, tenant, performance string) (map[string]model.SoldRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.SoldRecord)
	for scope, rec := range s.sold {
		if scope.tenant == tenant && scope.performance == performance {
			out[scope.seat] = rec
		}
	}
	return out, nil
}

func (s *MemoryStore) BlockedOrSold(ctx context.Context, tenant, performance string, seats []string) ([]string, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var blocked, sold []string
	for _, seat := range seats {
		scope := seatScope{tenant, performance, seat}
		if _, ok := s.blocks[scope]; ok {
			blocked = append(blocked, seat)
		}
		if _, ok := s.sold[scope]; ok {
			sold = append(sold, seat)
		}
	}
	return blocked, sold, nil
}

func (s *MemoryStore) PutBlocks(ctx context.Context, blocks []model.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		s.blocks[seatScope{b.Tenant, b.Performance, b.Seat}] = b
	}
	return nil
}

func (s *MemoryStore) DeleteBlocks(ctx context.Context, tenant, performance string, seats []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, seat := range seats {
		scope := seatScope{tenant, performance, seat}
		if _, ok := s.blocks[scope]; ok {
			delete(s.blocks, scope)
			removed = append(removed, seat)
		}
	}
	return removed, nil
}

func (s *MemoryStore) ConvertHold(ctx context.Context, tenant, holdID string, version int64, orderID string, at time.Time) (*model.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.holds[holdScope{tenant, holdID}]
	if !ok {
		return nil, model.NewReasonError(model.RNotFound, "hold not found", nil)
	}
	if !stored.State.OccupiesSeats() {
		return nil, model.NewReasonError(model.RStale, "hold is "+string(stored.State), nil)
	}
	if stored.Version != version {
		return nil, model.NewReasonError(model.RStale, "hold version does not match", nil)
	}
	for _, seat := range stored.Seats {
		if _, dup := s.sold[seatScope{tenant, stored.Performance, seat}]; dup {
			return nil, model.NewSeatsError(model.RConflict, "seat already sold", []string{seat})
		}
	}

	h := stored.Clone()
	for _, seat := range h.Seats {
		s.sold[seatScope{tenant, h.Performance, seat}] = model.SoldRecord{
			Tenant: tenant, Performance: h.Performance, Seat: seat,
			HoldID: h.ID, OrderID: orderID, SoldAt: at,
		}
	}
	h.State = model.HoldConverted
	h.OrderID = orderID
	h.UpdatedAt = at
	h.AppendEvent("converted", at, "order "+orderID)
	s.holds[holdScope{tenant, holdID}] = h.Clone()
	return h, nil
}

func (s *MemoryStore) GetIdempotency(ctx context.Context, tenant, key string) (*IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idem[idemScope{tenant, key}]
	if !ok || !rec.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	dup := *rec
	dup.Payload = append([]byte(nil), rec.Payload...)
	return &dup, nil
}

func (s *MemoryStore) PutIdempotency(ctx context.Context, tenant, key string, rec *IdempotencyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := idemScope{tenant, key}
	if cur, exists := s.idem[scope]; exists && cur.ExpiresAt.After(time.Now()) {
		return nil // first writer wins while the record is live; expired rows are replaced
	}
	dup := *rec
	dup.Payload = append([]byte(nil), rec.Payload...)
	s.idem[scope] = &dup
	return nil
}

func (s *MemoryStore) PruneIdempotency(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for scope, rec := range s.idem {
		if !rec.ExpiresAt.After(now) {
			delete(s.idem, scope)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }
