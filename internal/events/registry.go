// Package events carries telemetry from the session pipeline to its consumers.
package events

import "sync"

// registry holds keyed listeners plus the latest published value.
// L is the listener type, T the published value type.
type registry[L any, T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]L
	nextID     uint64
	replayLast bool
	last       T
	hasLast    bool
}

func newRegistry[L any, T any](replayLast bool) registry[L, T] {
	return registry[L, T]{
		listeners:  make(map[uint64]L),
		replayLast: replayLast,
	}
}

// add stores l and returns its remover plus the value to replay to it, if any
func (r *registry[L, T]) add(l L) (remove func(), replay T, ok bool) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	replay, ok = r.last, r.replayLast && r.hasLast
	r.mu.Unlock()

	var once sync.Once
	remove = func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
	return remove, replay, ok
}

// publish records value and returns the listeners to deliver it to
func (r *registry[L, T]) publish(value T) []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = value
	r.hasLast = true
	out := make([]L, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

// Last returns the most recently published value
func (r *registry[L, T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasLast
}

// ListenerCount returns the number of registered listeners
func (r *registry[L, T]) ListenerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
