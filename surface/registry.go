package surface

import "sync"

// SequentialRegistry is an in-memory Registry handing out monotonically
// increasing ids. Register must be called once per surface before the engine
// can emit for it; ResolveID stays "unknown" until then, which makes queued
// records for unregistered surfaces eligible for silent discard.
type SequentialRegistry struct {
	mu   sync.Mutex
	next int64
	ids  map[Surface]int64
}

// NewSequentialRegistry creates an empty registry. Ids start at 1.
func NewSequentialRegistry() *SequentialRegistry {
	return &SequentialRegistry{next: 1, ids: make(map[Surface]int64)}
}

// Register assigns an id to s, or returns the existing one.
func (r *SequentialRegistry) Register(s Surface) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[s]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[s] = id
	return id
}

// ResolveID implements Registry.
func (r *SequentialRegistry) ResolveID(s Surface) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[s]
	return id, ok
}

// Forget drops the registration for s. A surface removed from the host
// document stops resolving, so its queued records drain to nothing.
func (r *SequentialRegistry) Forget(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, s)
}
