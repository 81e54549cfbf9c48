package relay

import (
	"errors"
	"sync"
)

// ErrRegistryClosed is returned by Register once the registry has been
// shut down (shutdown race: a client connecting while the process exits).
var ErrRegistryClosed = errors.New("registry is closed")

// Registry is the concurrency-safe directory of open streams, keyed by
// recipient. Reads (every event fan-out) dominate writes (stream open and
// close), so lookups take a read lock and return a snapshot the caller can
// iterate without holding the lock.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]map[*Handle]struct{}
	closed  bool
	done    chan struct{}
}

// NewRegistry allocates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]map[*Handle]struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds the handle under its recipient key, creating the key's set
// if absent. Returns ErrRegistryClosed during shutdown.
func (r *Registry) Register(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	set, ok := r.handles[h.Key]
	if !ok {
		set = make(map[*Handle]struct{})
		r.handles[h.Key] = set
	}
	set[h] = struct{}{}
	return nil
}

// Deregister removes the handle from its key's set, pruning the key when
// the set empties so keys for departed users do not accumulate. Safe to
// call multiple times for the same handle.
func (r *Registry) Deregister(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.handles[h.Key]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.handles, h.Key)
	}
}

// Lookup returns a snapshot of the handles registered under key. The slice
// is the caller's to iterate; registry mutations after Lookup returns do
// not affect it.
func (r *Registry) Lookup(key string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.handles[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Count returns the total number of registered handles across all keys.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.handles {
		total += len(set)
	}
	return total
}

// Done is closed when the registry shuts down. Stream owners select on it
// to end their connections during process termination.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Close marks the registry closed, rejects further registrations and
// signals every registered handle to end. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.done)

	for _, set := range r.handles {
		for h := range set {
			h.Close()
		}
	}
	r.handles = make(map[string]map[*Handle]struct{})
}
