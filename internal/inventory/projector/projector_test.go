// SPDX-License-Identifier: MIT

package projector

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/reaper"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
)

type fixture struct {
	projector *Projector
	ledger    *ledger.MemoryLedger
	shadow    shadow.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.NewMemory(),
		shadow: shadow.NewMemory(),
	}
	f.projector = New(f.ledger, f.shadow, nil)
	return f
}

func (f *fixture) lock(t *testing.T, seat, owner string, version int64) {
	t.Helper()
	res, err := f.ledger.AcquireAllOrNone(context.Background(),
		model.HoldKeys("T1", "P1", []string{seat}), owner, version, time.Hour, time.Now())
	require.NoError(t, err)
	require.True(t, res.OK)
}

func (f *fixture) block(t *testing.T, seat string) {
	t.Helper()
	require.NoError(t, f.shadow.PutBlocks(context.Background(), []model.Block{
		{Tenant: "T1", Performance: "P1", Seat: seat, Reason: "test", CreatedAt: time.Now()},
	}))
}

// sell inserts a sold record by converting a synthetic hold.
func (f *fixture) sell(t *testing.T, seat string) {
	t.Helper()
	now := time.Now()
	h := &model.Hold{
		ID: "sold-" + seat, Tenant: "T1", Performance: "P1", Owner: "buyer",
		Version: 99, State: model.HoldActive, Seats: []string{seat},
		CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, f.shadow.CreateHold(context.Background(), h))
	_, err := f.shadow.ConvertHold(context.Background(), "T1", h.ID, 99, "ord-"+seat, now)
	require.NoError(t, err)
}

func TestSnapshotPrecedence(t *testing.T) {
	f := newFixture(t)

	// A1 is sold, blocked AND locked: sold must win. A2 is blocked and
	// locked: blocked wins. A3 is only locked.
	f.sell(t, "A1")
	f.block(t, "A1")
	f.lock(t, "A1", "owner-x", 1)
	f.block(t, "A2")
	f.lock(t, "A2", "owner-x", 2)
	f.lock(t, "A3", "owner-x", 3)

	views, err := f.projector.Snapshot(context.Background(), "T1", "P1", "")
	require.NoError(t, err)

	want := []SeatView{
		{Seat: "A1", Status: model.SeatSold},
		{Seat: "A2", Status: model.SeatBlocked},
		{Seat: "A3", Status: model.SeatHeld},
	}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotOwnerSelf(t *testing.T) {
	f := newFixture(t)
	f.lock(t, "A1", "owner-1", 1)
	f.lock(t, "A2", "owner-2", 2)

	views, err := f.projector.Snapshot(context.Background(), "T1", "P1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, []SeatView{
		{Seat: "A1", Status: model.SeatHeld, OwnerSelf: true},
		{Seat: "A2", Status: model.SeatHeld},
	}, views)

	// No principal: nothing is marked self.
	views, err = f.projector.Snapshot(context.Background(), "T1", "P1", "")
	require.NoError(t, err)
	for _, v := range views {
		require.False(t, v.OwnerSelf)
	}
}

func TestStatusIncludesAvailable(t *testing.T) {
	f := newFixture(t)
	f.lock(t, "A2", "owner-1", 1)

	views, err := f.projector.Status(context.Background(), "T1", "P1", []string{"A1", "A2", "A3"}, "")
	require.NoError(t, err)
	require.Equal(t, []SeatView{
		{Seat: "A1", Status: model.SeatAvailable},
		{Seat: "A2", Status: model.SeatHeld},
		{Seat: "A3", Status: model.SeatAvailable},
	}, views, "status must answer in request order, available included")
}

func TestSnapshotTenantIsolation(t *testing.T) {
	f := newFixture(t)
	f.lock(t, "A1", "owner-1", 1)

	views, err := f.projector.Snapshot(context.Background(), "T2", "P1", "")
	require.NoError(t, err)
	require.Empty(t, views)
}

// A snapshot taken after losing stream events must equal the authoritative
// state: every classification is read fresh from the stores.
func TestResnapshotMatchesAuthoritativeState(t *testing.T) {
	f := newFixture(t)
	f.lock(t, "A1", "owner-1", 1)
	f.sell(t, "A2")

	before, err := f.projector.Snapshot(context.Background(), "T1", "P1", "")
	require.NoError(t, err)
	require.Len(t, before, 2)

	// Mutations a gapped subscriber would have missed.
	_, err = f.ledger.ReleaseIfOwner(context.Background(), model.HoldKey("T1", "P1", "A1"), "owner-1", 1)
	require.NoError(t, err)
	f.block(t, "A3")

	after, err := f.projector.Snapshot(context.Background(), "T1", "P1", "")
	require.NoError(t, err)
	require.Equal(t, []SeatView{
		{Seat: "A2", Status: model.SeatSold},
		{Seat: "A3", Status: model.SeatBlocked},
	}, after)
}

// A shadow-active hold whose ledger keys vanished must be hinted to the
// reaper, which expires it without waiting for the next full sweep.
func TestSnapshotHintsVanishedHolds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	b := bus.NewMemoryBus(16)
	defer func() { _ = b.Close() }()

	r := reaper.New(f.ledger, f.shadow, b, bus.NewSequencer(), reaper.Config{
		Interval: time.Hour, // only the hint path may act
		Grace:    time.Millisecond,
	})
	f.projector.Reaper = r

	now := time.Now()
	h := &model.Hold{
		ID: "h1", Tenant: "T1", Performance: "P1", Owner: "owner-1",
		Version: 5, State: model.HoldActive, Seats: []string{"A1"},
		CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, f.shadow.CreateHold(context.Background(), h))

	sub, err := b.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	// No ledger key for A1: the snapshot must push a hint.
	_, err = f.projector.Snapshot(context.Background(), "T1", "P1", "")
	require.NoError(t, err)

	select {
	case ev := <-sub.C():
		require.Equal(t, model.EventSeatExpired, ev.Kind)
		require.Equal(t, "A1", ev.Seat)
	case <-time.After(2 * time.Second):
		t.Fatal("vanished hold was not expired via hint")
	}

	cancel()
	<-done
}
