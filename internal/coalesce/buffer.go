// Package coalesce implements the frame-boundary coalescer: it buffers
// intercepted drawing records per surface and drains them once per rendering
// cycle, emitting one batched event per surface per cycle.
package coalesce

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

// Buffer is the pending-mutation store: surface handle → ordered records.
// A surface is present only while it has at least one undrained record.
// Insertion order is the temporal order of interception.
type Buffer struct {
	mu      sync.Mutex
	pending map[surface.Surface][]mutation.Record
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{pending: make(map[surface.Surface][]mutation.Record)}
}

// Push appends rec to s's queue, creating the queue if absent. Never blocks
// beyond the map lock, never drops.
func (b *Buffer) Push(s surface.Surface, rec mutation.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[s] = append(b.pending[s], rec)
}

// Drain removes and returns s's queued records. The removal is atomic with
// respect to concurrent Push calls: a record either drains now or waits in a
// fresh queue for the next cycle.
func (b *Buffer) Drain(s surface.Surface) []mutation.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	recs := b.pending[s]
	delete(b.pending, s)
	return recs
}

// Surfaces returns the handles that currently have queued records.
func (b *Buffer) Surfaces() []surface.Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]surface.Surface, 0, len(b.pending))
	for s := range b.pending {
		out = append(out, s)
	}
	return out
}

// Len returns the number of queued records for s.
func (b *Buffer) Len(s surface.Surface) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[s])
}

// Clear discards everything. Used by reset.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = make(map[surface.Surface][]mutation.Record)
}

// RafStamps detects "a new rendering cycle has begun since the last drain
// was owed" without sharing a frame counter between the insertion path and
// the drain loop. latest is continuously updated by the stamp task; invoke
// marks the cycle at which a drain was last owed. invoke is monotonically
// non-decreasing and never exceeds latest.
type RafStamps struct {
	latest atomic.Int64 // unix nanos of the most recent cycle
	invoke atomic.Int64 // unix nanos at which a drain was last owed; 0 = unset
}

// MarkCycle records the current cycle timestamp.
func (r *RafStamps) MarkCycle(now time.Time) {
	r.latest.Store(now.UnixNano())
}

// NoteMutation is called on every intercepted record. When a new cycle has
// started since the last note (or none was ever taken), it advances invoke
// to latest, marking that a drain is owed for at least this cycle.
func (r *RafStamps) NoteMutation() {
	latest := r.latest.Load()
	if r.invoke.Load() != latest {
		r.invoke.Store(latest)
	}
}

// Latest returns the most recent cycle timestamp in unix nanos.
func (r *RafStamps) Latest() int64 { return r.latest.Load() }

// Invoke returns the last owed-drain timestamp in unix nanos (0 = unset).
func (r *RafStamps) Invoke() int64 { return r.invoke.Load() }
