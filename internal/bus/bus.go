// SPDX-License-Identifier: MIT

// Package bus fans seat change events out to availability stream
// subscribers. Delivery is at-least-once with per-(tenant, performance)
// ordering; events carry a monotonic sequence number so consumers can detect
// gaps and re-snapshot.
package bus

import (
	"context"
	"sync"
	"time"
)

// Event is one seat state change.
type Event struct {
	Tenant      string    `json:"tenant_id"`
	Performance string    `json:"performance_id"`
	Seat        string    `json:"seat_id"`
	HoldID      string    `json:"hold_id,omitempty"`
	Kind        string    `json:"kind"`
	Sequence    uint64    `json:"sequence"`
	At          time.Time `json:"at"`
}

// Partition returns the ordering scope of the event.
func (e Event) Partition() string {
	return e.Tenant + ":" + e.Performance
}

// Subscription is one consumer's view of a partition. The channel closes when
// the subscription or the bus shuts down.
type Subscription interface {
	C() <-chan Event
	Close() error
}

// Bus is the change event transport port.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, tenant, performance string) (Subscription, error)
	Close() error
}

// Sequencer allocates per-partition monotonic sequence numbers. One instance
// is shared by every publisher of a process so ordering within a partition is
// total.
type Sequencer struct {
	mu   sync.Mutex
	next map[string]uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{next: make(map[string]uint64)}
}

// Next returns the next sequence number for (tenant, performance), starting
// at 1.
func (s *Sequencer) Next(tenant, performance string) uint64 {
	scope := tenant + ":" + performance
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[scope]++
	return s.next[scope]
}
