// registry.go
// The registry is the authoritative set of open connections. It is the only
// shared mutable state in the relay: the accept path inserts, the close path
// removes and fan-out reads a copied snapshot so delivery never holds the lock.

package relay

import (
	"fmt"
	"sync"
)

// Registry tracks connected clients keyed by session id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds c under its id. A second client with the same id is rejected
// with ErrDuplicateID rather than overwriting the live one.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.id]; exists {
		return fmt.Errorf("register %s: %w", c.id, ErrDuplicateID)
	}
	r.clients[c.id] = c
	return nil
}

// Unregister removes the client with the given id. It reports whether an entry
// was removed; removing an absent id is a no-op since close can race with
// slow-consumer eviction.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; !exists {
		return false
	}
	delete(r.clients, id)
	return true
}

// Snapshot returns a point-in-time copy of the registered clients.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Get looks up a client by id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	return c, ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
