// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func publish(t *testing.T, b *MemoryBus, seq *Sequencer, tenant, perf, seat, kind string) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), Event{
		Tenant:      tenant,
		Performance: perf,
		Seat:        seat,
		Kind:        kind,
		Sequence:    seq.Next(tenant, perf),
		At:          time.Now(),
	}))
}

func TestMemoryBusPartitionOrdering(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewMemoryBus(16)
	defer func() { _ = b.Close() }()
	seq := NewSequencer()

	sub, err := b.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	publish(t, b, seq, "T1", "P1", "A1", "seat.locked")
	publish(t, b, seq, "T1", "P2", "X1", "seat.locked") // other partition, invisible
	publish(t, b, seq, "T1", "P1", "A1", "seat.released")

	first := <-sub.C()
	second := <-sub.C()
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, "seat.locked", first.Kind)
	require.Equal(t, uint64(2), second.Sequence)
	require.Equal(t, "seat.released", second.Kind)

	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event from foreign partition: %+v", ev)
	default:
	}
}

func TestMemoryBusOverflowDropsOldest(t *testing.T) {
	b := NewMemoryBus(2)
	defer func() { _ = b.Close() }()
	seq := NewSequencer()

	sub, err := b.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	for _, seat := range []string{"A1", "A2", "A3", "A4"} {
		publish(t, b, seq, "T1", "P1", seat, "seat.locked")
	}

	// Queue depth 2: the two oldest events were dropped, the newest survive.
	got := []Event{<-sub.C(), <-sub.C()}
	require.Equal(t, uint64(3), got[0].Sequence)
	require.Equal(t, uint64(4), got[1].Sequence)
}

func TestMemoryBusSubscriberCloseStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewMemoryBus(4)
	defer func() { _ = b.Close() }()
	seq := NewSequencer()

	sub, err := b.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	// Publishing after close must not panic or block.
	publish(t, b, seq, "T1", "P1", "A1", "seat.locked")

	_, open := <-sub.C()
	require.False(t, open, "closed subscription channel must be drained and closed")
}

func TestMemoryBusCloseRacingPublishDoesNotPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewMemoryBus(4)
	defer func() { _ = b.Close() }()

	// Subscribers churn while a publisher keeps firing into the same
	// partition. A send racing a disconnect must neither panic nor block.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 200; i++ {
			sub, err := b.Subscribe(context.Background(), "T1", "P1")
			if err != nil {
				t.Errorf("subscribe %d: %v", i, err)
				return
			}
			_ = sub.Close()
		}
	}()
	go func() {
		defer wg.Done()
		var n uint64
		for {
			select {
			case <-done:
				return
			default:
			}
			n++
			_ = b.Publish(context.Background(), Event{
				Tenant:      "T1",
				Performance: "P1",
				Seat:        "A1",
				Kind:        "seat.locked",
				Sequence:    n,
				At:          time.Now(),
			})
		}
	}()
	wg.Wait()
}

func TestMemoryBusCloseClosesSubscribers(t *testing.T) {
	b := NewMemoryBus(4)
	sub, err := b.Subscribe(context.Background(), "T1", "P1")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, open := <-sub.C()
	require.False(t, open)

	_, err = b.Subscribe(context.Background(), "T1", "P1")
	require.Error(t, err)
}

func TestSequencerMonotonicUnderConcurrency(t *testing.T) {
	seq := NewSequencer()

	const workers = 8
	const perWorker = 200
	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n := seq.Next("T1", "P1")
				mu.Lock()
				require.False(t, seen[n], "duplicate sequence %d", n)
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	require.True(t, seen[uint64(workers*perWorker)], "sequence space must be dense")

	// Partitions count independently.
	require.Equal(t, uint64(1), seq.Next("T1", "P2"))
	require.Equal(t, uint64(1), seq.Next("T2", "P1"))
}
