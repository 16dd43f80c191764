// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/IsakPar/the-lml-sub003/internal/metrics"
)

// DefaultQueueDepth bounds a subscriber queue when the caller does not
// configure one.
const DefaultQueueDepth = 64

// MemoryBus is the in-process fan-out. Publish never blocks: when a
// subscriber queue is full the oldest buffered event is dropped and counted,
// and the subscriber recovers by re-snapshotting once it sees the sequence
// gap.
type MemoryBus struct {
	depth int

	mu     sync.Mutex
	subs   map[string][]*memorySub
	closed bool
}

// memorySub serializes channel sends and the close through its own mutex, so
// a subscriber disconnecting mid-publish can never panic a sender.
type memorySub struct {
	bus       *MemoryBus
	partition string

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *memorySub) C() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.bus.detach(s)
	s.closeChan()
	return nil
}

// deliver hands one event to the subscriber without ever blocking. A full
// queue loses its oldest event; a closed subscriber drops the event silently.
func (s *memorySub) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
		return
	default:
	}
	// Queue full: drop the oldest event, then deliver the new one. The
	// second send can only miss if the consumer drained everything in
	// between, in which case it succeeds on a free slot anyway.
	select {
	case <-s.ch:
		metrics.IncBusDropReason(s.partition, "overflow")
	default:
	}
	select {
	case s.ch <- ev:
	default:
		metrics.IncBusDropReason(s.partition, "overflow")
	}
}

func (s *memorySub) closeChan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	metrics.BusSubscribers.Dec()
}

func NewMemoryBus(queueDepth int) *MemoryBus {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &MemoryBus{
		depth: queueDepth,
		subs:  make(map[string][]*memorySub),
	}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	partition := ev.Partition()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus closed")
	}
	subs := append([]*memorySub(nil), b.subs[partition]...)
	b.mu.Unlock()

	metrics.IncBusPublished(ev.Kind)
	for _, sub := range subs {
		sub.deliver(ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, tenant, performance string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{
		bus:       b,
		partition: tenant + ":" + performance,
		ch:        make(chan Event, b.depth),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("bus closed")
	}
	b.subs[sub.partition] = append(b.subs[sub.partition], sub)
	metrics.BusSubscribers.Inc()
	return sub, nil
}

// detach removes the subscriber from the fan-out map; the channel itself is
// closed separately under the subscriber's own mutex.
func (b *MemoryBus) detach(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.partition]
	kept := list[:0]
	for _, s := range list {
		if s != sub {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, sub.partition)
	} else {
		b.subs[sub.partition] = kept
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySub
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*memorySub)
	b.mu.Unlock()

	for _, sub := range all {
		sub.closeChan()
	}
	return nil
}
