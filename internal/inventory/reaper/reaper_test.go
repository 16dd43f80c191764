// SPDX-License-Identifier: MIT

package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
)

type fixture struct {
	reaper *Reaper
	ledger *ledger.MemoryLedger
	shadow shadow.Store
	bus    *bus.MemoryBus
	now    time.Time
	mu     sync.Mutex
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.NewMemory(),
		shadow: shadow.NewMemory(),
		bus:    bus.NewMemoryBus(64),
		now:    time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = f.bus.Close() })

	f.ledger.Now = f.clock
	f.reaper = New(f.ledger, f.shadow, f.bus, bus.NewSequencer(), Config{
		Interval: time.Second,
		Grace:    5 * time.Second,
	})
	f.reaper.Now = f.clock
	return f
}

// seedHold creates a shadow hold and optionally its ledger locks.
func (f *fixture) seedHold(t *testing.T, id string, seats []string, ttl time.Duration, locked bool) *model.Hold {
	t.Helper()
	now := f.clock()
	h := &model.Hold{
		ID:          id,
		Tenant:      "T1",
		Performance: "P1",
		Owner:       "owner-1",
		Version:     7,
		State:       model.HoldActive,
		Seats:       seats,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	require.NoError(t, f.shadow.CreateHold(context.Background(), h))
	if locked {
		keys := model.HoldKeys("T1", "P1", seats)
		res, err := f.ledger.AcquireAllOrNone(context.Background(), keys, "owner-1", 7, ttl, now)
		require.NoError(t, err)
		require.True(t, res.OK)
	}
	return h
}

func expiredEvents(sub bus.Subscription) []bus.Event {
	var evs []bus.Event
	for {
		select {
		case ev := <-sub.C():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestSweepExpiresVanishedHold(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	sub, err := f.bus.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	f.seedHold(t, "h1", []string{"A1", "A2"}, 10*time.Second, true)

	// Past TTL and grace: the ledger has lazily dropped the keys.
	f.advance(20 * time.Second)
	f.reaper.SweepOnce(context.Background())

	h, err := f.shadow.GetHold(context.Background(), "T1", "h1")
	require.NoError(t, err)
	require.Equal(t, model.HoldExpired, h.State)
	require.Equal(t, "expired", h.Events[len(h.Events)-1].Type)

	evs := expiredEvents(sub)
	require.Len(t, evs, 2, "exactly one seat.expired per seat")
	for _, ev := range evs {
		require.Equal(t, model.EventSeatExpired, ev.Kind)
		require.Equal(t, "h1", ev.HoldID)
	}

	// A second sweep is a no-op: no duplicate events.
	f.reaper.SweepOnce(context.Background())
	require.Empty(t, expiredEvents(sub))
}

func TestSweepRespectsGrace(t *testing.T) {
	f := newFixture(t)
	f.seedHold(t, "h1", []string{"A1"}, 10*time.Second, false)

	// Expired, but still inside the 5s grace window.
	f.advance(12 * time.Second)
	f.reaper.SweepOnce(context.Background())

	h, err := f.shadow.GetHold(context.Background(), "T1", "h1")
	require.NoError(t, err)
	require.Equal(t, model.HoldActive, h.State, "grace must delay the sweep")

	f.advance(5 * time.Second)
	f.reaper.SweepOnce(context.Background())
	h, err = f.shadow.GetHold(context.Background(), "T1", "h1")
	require.NoError(t, err)
	require.Equal(t, model.HoldExpired, h.State)
}

func TestSweepTrustsLiveLedgerKeys(t *testing.T) {
	f := newFixture(t)
	f.seedHold(t, "h1", []string{"A1"}, time.Hour, true)

	// Shadow says expired (simulating clock skew) but the lock is alive at
	// the hold's version: leave it alone.
	_, err := f.shadow.UpdateHold(context.Background(), "T1", "h1", func(h *model.Hold) error {
		h.ExpiresAt = f.clock().Add(-time.Minute)
		return nil
	})
	require.NoError(t, err)

	f.reaper.SweepOnce(context.Background())
	h, err := f.shadow.GetHold(context.Background(), "T1", "h1")
	require.NoError(t, err)
	require.Equal(t, model.HoldActive, h.State)
}

func TestSweepSkipsSeatsRelockedAtNewerVersion(t *testing.T) {
	f := newFixture(t)
	sub, err := f.bus.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	// Stale record whose seat A1 was re-locked at a newer version before the
	// old expiry passed; A2 is genuinely gone.
	f.seedHold(t, "h1", []string{"A1", "A2"}, 10*time.Second, false)
	res, err := f.ledger.AcquireAllOrNone(context.Background(),
		model.HoldKeys("T1", "P1", []string{"A1"}), "owner-1", 9, time.Hour, f.clock())
	require.NoError(t, err)
	require.True(t, res.OK)

	f.advance(20 * time.Second)
	f.reaper.SweepOnce(context.Background())

	h, err := f.shadow.GetHold(context.Background(), "T1", "h1")
	require.NoError(t, err)
	require.Equal(t, model.HoldExpired, h.State, "the stale record still settles")

	// No seat.expired for the still-locked seat: a stream subscriber must
	// never see a held seat announced as free.
	evs := expiredEvents(sub)
	require.Len(t, evs, 1)
	require.Equal(t, "A2", evs[0].Seat)
	require.Equal(t, model.EventSeatExpired, evs[0].Kind)
}

// pruneCounter records how many idempotency rows the sweep dropped.
type pruneCounter struct {
	shadow.Store
	pruned int
}

func (p *pruneCounter) PruneIdempotency(ctx context.Context, now time.Time) (int, error) {
	n, err := p.Store.PruneIdempotency(ctx, now)
	p.pruned += n
	return n, err
}

func TestSweepPrunesExpiredIdempotencyRecords(t *testing.T) {
	f := newFixture(t)
	counter := &pruneCounter{Store: f.shadow}
	f.reaper.Shadow = counter
	ctx := context.Background()

	require.NoError(t, f.shadow.PutIdempotency(ctx, "T1", "key-1", &shadow.IdempotencyRecord{
		Op: "acquire", Fingerprint: "fp-old", Payload: []byte(`{}`),
		ExpiresAt: f.clock().Add(-time.Minute),
	}))

	f.reaper.SweepOnce(ctx)
	require.Equal(t, 1, counter.pruned, "the sweep drops dead idempotency rows")

	// The dead row is gone, so the key accepts a fresh record again.
	require.NoError(t, f.shadow.PutIdempotency(ctx, "T1", "key-1", &shadow.IdempotencyRecord{
		Op: "acquire", Fingerprint: "fp-new", Payload: []byte(`{}`),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	rec, err := f.shadow.GetIdempotency(ctx, "T1", "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "fp-new", rec.Fingerprint)
}

func TestHintExpiresHoldBetweenTicks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	// Long interval: only the hint path can act during the test.
	f.reaper.Conf.Interval = time.Hour

	sub, err := f.bus.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	// Active in the shadow store, no ledger key: a crashed acquire.
	f.seedHold(t, "h1", []string{"A1"}, time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.reaper.Run(ctx)
	}()

	f.reaper.Offer(Hint{Tenant: "T1", HoldID: "h1"})

	select {
	case ev := <-sub.C():
		require.Equal(t, model.EventSeatExpired, ev.Kind)
		require.Equal(t, "A1", ev.Seat)
	case <-time.After(2 * time.Second):
		t.Fatal("hint did not trigger expiry")
	}

	cancel()
	<-done
}

func TestOfferDropsWhenFull(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < hintQueueDepth+10; i++ {
		f.reaper.Offer(Hint{Tenant: "T1", HoldID: "h"})
	}
	// Must not block or panic; the ticker sweep covers dropped hints.
}

func TestHintIgnoresSettledHolds(t *testing.T) {
	f := newFixture(t)
	h := f.seedHold(t, "h1", []string{"A1"}, time.Hour, false)
	_, err := f.shadow.UpdateHold(context.Background(), "T1", h.ID, func(cur *model.Hold) error {
		cur.State = model.HoldReleased
		return nil
	})
	require.NoError(t, err)

	sub, err := f.bus.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	f.reaper.sweepHint(context.Background(), Hint{Tenant: "T1", HoldID: "h1"})
	require.Empty(t, expiredEvents(sub))

	got, err := f.shadow.GetHold(context.Background(), "T1", "h1")
	require.NoError(t, err)
	require.Equal(t, model.HoldReleased, got.State)
}
