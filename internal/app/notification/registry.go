// Package notification provides a listener registry for fanning out events.
package notification

import (
	"sync"

	"github.com/google/uuid"
)

// Registry manages listener subscriptions keyed by a uuid handle.
// Listeners are invoked synchronously in subscription order.
type Registry[T any] struct {
	mu        sync.RWMutex
	order     []string
	listeners map[string]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		listeners: make(map[string]T),
	}
}

// Subscribe adds a listener and returns its subscription ID.
func (r *Registry[T]) Subscribe(listener T) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.listeners[id] = listener
	r.order = append(r.order, id)
	return id
}

// Unsubscribe removes a listener. It reports whether the ID was registered.
func (r *Registry[T]) Unsubscribe(subscriptionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[subscriptionID]; !ok {
		return false
	}
	delete(r.listeners, subscriptionID)
	for i, id := range r.order {
		if id == subscriptionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Each calls fn for every listener. The lock is not held while fn runs,
// so listeners may subscribe or unsubscribe.
func (r *Registry[T]) Each(fn func(T)) {
	r.mu.RLock()
	// Copy listeners to avoid holding lock during delivery
	snapshot := make([]T, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.listeners[id])
	}
	r.mu.RUnlock()

	for _, l := range snapshot {
		fn(l)
	}
}

// Count returns the number of active listeners.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Close removes all listeners.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(map[string]T)
	r.order = nil
}
