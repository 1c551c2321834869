package session

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// RevocationRegistry remembers revoked access credential ids until the
// credentials would have expired anyway.
type RevocationRegistry interface {
	// Revoke marks id revoked until until. Revoking again keeps the later bound.
	Revoke(ctx context.Context, id string, until time.Time) error
	// IsRevoked reports whether id is revoked at now. Entries past their
	// bound are absent.
	IsRevoked(ctx context.Context, id string, now time.Time) (bool, error)
	// Prune evicts entries whose bound is at or before now.
	Prune(ctx context.Context, now time.Time) (int, error)
}

type revocationEntry struct {
	id    string
	until time.Time
}

// revocationHeap is a min-heap by until. It may hold stale entries for ids
// re-revoked with a later bound; the map is authoritative.
type revocationHeap []revocationEntry

func (h revocationHeap) Len() int           { return len(h) }
func (h revocationHeap) Less(i, j int) bool { return h[i].until.Before(h[j].until) }
func (h revocationHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *revocationHeap) Push(x any)        { *h = append(*h, x.(revocationEntry)) }
func (h *revocationHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// MemoryRevocationRegistry is an in-process RevocationRegistry.
//
// Size is bounded by (logouts per access TTL): every write first evicts
// entries that have expired by the registry clock, and the sweeper prunes
// on an interval.
type MemoryRevocationRegistry struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
	order   revocationHeap
}

var _ RevocationRegistry = (*MemoryRevocationRegistry)(nil)

// RevocationOption configures a MemoryRevocationRegistry.
type RevocationOption func(*MemoryRevocationRegistry)

// WithRevocationClock sets the clock used for eviction on write.
func WithRevocationClock(now func() time.Time) RevocationOption {
	return func(r *MemoryRevocationRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewMemoryRevocationRegistry(opts ...RevocationOption) *MemoryRevocationRegistry {
	r := &MemoryRevocationRegistry{
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *MemoryRevocationRegistry) Revoke(ctx context.Context, id string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return errors.New("session: revoke: empty credential id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(r.now())

	if cur, ok := r.entries[id]; ok && !until.After(cur) {
		return nil
	}
	r.entries[id] = until
	heap.Push(&r.order, revocationEntry{id: id, until: until})
	return nil
}

func (r *MemoryRevocationRegistry) IsRevoked(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.entries[id]
	return ok && now.Before(until), nil
}

func (r *MemoryRevocationRegistry) Prune(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(now), nil
}

// Len returns the number of live-or-unpruned entries.
func (r *MemoryRevocationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *MemoryRevocationRegistry) pruneLocked(now time.Time) int {
	n := 0
	for r.order.Len() > 0 && !now.Before(r.order[0].until) {
		e := heap.Pop(&r.order).(revocationEntry)
		if cur, ok := r.entries[e.id]; ok && cur.Equal(e.until) {
			delete(r.entries, e.id)
			n++
		}
	}
	return n
}
