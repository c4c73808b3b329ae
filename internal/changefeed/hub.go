// Package changefeed tells live queries when a collection has changed.
//
// The document store publishes the collection name after every committed
// write; every Watch registered on that collection is called back and
// re-runs its query. The identity provider publishes "sessions/<id>" the
// same way when a session closes. Hub does this inside one process,
// NATSBridge extends it across processes sharing a database.
package changefeed

import (
	"sync"
)

// Notifier is the listener registry used by live queries.
type Notifier interface {
	// Publish signals that collection changed.
	Publish(collection string)
	// Subscribe registers fn for collection and returns a function that
	// removes the registration.
	Subscribe(collection string, fn func()) (cancel func())
}

// Hub is an in-process Notifier. Callbacks run synchronously on the
// publishing goroutine, so they must not block.
type Hub struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]func()
}

var _ Notifier = (*Hub)(nil)

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[uint64]func())}
}

func (h *Hub) Publish(collection string) {
	h.mu.RLock()
	fns := make([]func(), 0, len(h.listeners[collection]))
	for _, fn := range h.listeners[collection] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (h *Hub) Subscribe(collection string, fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.listeners[collection] == nil {
		h.listeners[collection] = make(map[uint64]func())
	}
	h.listeners[collection][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[collection], id)
			if len(h.listeners[collection]) == 0 {
				delete(h.listeners, collection)
			}
		})
	}
}

// Listeners returns how many callbacks are registered for collection.
func (h *Hub) Listeners(collection string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[collection])
}
