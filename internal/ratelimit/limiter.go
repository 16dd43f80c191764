// SPDX-License-Identifier: MIT

// Package ratelimit enforces the per-owner acquire budget: a token bucket per
// (tenant, owner) refilled across the configured window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var budgetExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sle_ratelimit_exceeded_total",
	Help: "Acquire attempts rejected by the per-owner budget",
}, []string{"tenant"})

const cleanupInterval = 5 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// OwnerBudget grants Burst acquires per Window to each (tenant, owner) pair.
// Buckets idle for a full window have refilled completely and are evicted;
// buckets still in use keep their partial fill across cleanups.
type OwnerBudget struct {
	burst  int
	window time.Duration

	// now is swappable for tests.
	now func() time.Time

	mu          sync.Mutex
	owners      map[string]*bucket
	lastCleanup time.Time
}

func NewOwnerBudget(burst int, window time.Duration) *OwnerBudget {
	if burst <= 0 {
		burst = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &OwnerBudget{
		burst:       burst,
		window:      window,
		now:         time.Now,
		owners:      make(map[string]*bucket),
		lastCleanup: time.Now(),
	}
}

// Allow consumes one acquire from the owner's budget and reports whether it
// was available.
func (b *OwnerBudget) Allow(tenant, owner string) bool {
	key := tenant + ":" + owner
	now := b.now()

	b.mu.Lock()
	bk, ok := b.owners[key]
	if !ok {
		bk = &bucket{
			lim: rate.NewLimiter(rate.Limit(float64(b.burst)/b.window.Seconds()), b.burst),
		}
		b.owners[key] = bk
	}
	bk.lastSeen = now
	b.maybeCleanupLocked(now)
	b.mu.Unlock()

	if bk.lim.AllowN(now, 1) {
		return true
	}
	budgetExceeded.WithLabelValues(tenant).Inc()
	return false
}

// RetryAfter is the wait the transport layer advertises on rejection.
func (b *OwnerBudget) RetryAfter() time.Duration {
	return b.window
}

func (b *OwnerBudget) maybeCleanupLocked(now time.Time) {
	if now.Sub(b.lastCleanup) < cleanupInterval {
		return
	}
	b.lastCleanup = now
	for key, bk := range b.owners {
		if now.Sub(bk.lastSeen) >= b.window {
			delete(b.owners, key)
		}
	}
}
