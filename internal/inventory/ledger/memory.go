// SPDX-License-Identifier: MIT

package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
)

type memoryEntry struct {
	record    model.LockRecord
	expiresAt time.Time
}

// MemoryLedger is a mutex-guarded map with the same semantics as the Redis
// scripts. Expiry is lazy: entries are dropped when a read or write touches
// them past their deadline.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewMemory() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

// live returns the entry for key if it has not expired, pruning it otherwise.
// Callers hold mu.
func (l *MemoryLedger) live(key string) (memoryEntry, bool) {
	e, ok := l.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !l.Now().Before(e.expiresAt) {
		delete(l.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (l *MemoryLedger) AcquireAllOrNone(ctx context.Context, keys []string, owner string, version int64, ttl time.Duration, now time.Time) (AcquireResult, error) {
	if err := ctx.Err(); err != nil {
		return AcquireResult{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var conflicts []string
	for _, key := range keys {
		if e, ok := l.live(key); ok && e.record.Owner != owner {
			conflicts = append(conflicts, key)
		}
	}
	if len(conflicts) > 0 {
		return AcquireResult{ConflictKeys: conflicts}, nil
	}
	expires := l.Now().Add(ttl)
	for _, key := range keys {
		l.entries[key] = memoryEntry{
			record:    model.LockRecord{Version: version, Owner: owner},
			expiresAt: expires,
		}
	}
	return AcquireResult{OK: true}, nil
}

func (l *MemoryLedger) ExtendIfOwner(ctx context.Context, key, owner string, version int64, ttl time.Duration) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return NOOP, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.live(key)
	if !ok || e.record.Owner != owner || e.record.Version != version {
		return NOOP, nil
	}
	e.expiresAt = l.Now().Add(ttl)
	l.entries[key] = e
	return OK, nil
}

func (l *MemoryLedger) ReleaseIfOwner(ctx context.Context, key, owner string, version int64) (Outcome, error) {
	return l.deleteIfFenced(ctx, key, owner, version)
}

func (l *MemoryLedger) RollbackIfOwner(ctx context.Context, key, owner string, version int64) (Outcome, error) {
	return l.deleteIfFenced(ctx, key, owner, version)
}

func (l *MemoryLedger) deleteIfFenced(ctx context.Context, key, owner string, version int64) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return NOOP, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.live(key)
	if !ok || e.record.Owner != owner || e.record.Version != version {
		return NOOP, nil
	}
	delete(l.entries, key)
	return OK, nil
}

func (l *MemoryLedger) ScanHeld(ctx context.Context, tenant, performance string) (map[string]model.LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := strings.TrimSuffix(model.ScanPattern(tenant, performance), "*")
	held := make(map[string]model.LockRecord)
	for key := range l.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		e, ok := l.live(key)
		if !ok {
			continue
		}
		if seat, ok := model.SeatFromKey(key); ok {
			held[seat] = e.record
		}
	}
	return held, nil
}

func (l *MemoryLedger) ProbeHeld(ctx context.Context, keys []string) (map[string]model.LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	held := make(map[string]model.LockRecord, len(keys))
	for _, key := range keys {
		if e, ok := l.live(key); ok {
			held[key] = e.record
		}
	}
	return held, nil
}

func (l *MemoryLedger) Ping(ctx context.Context) error { return ctx.Err() }

func (l *MemoryLedger) Close() error { return nil }
