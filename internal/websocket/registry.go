package websocket

import (
	"log/slog"
	"sync"
)

// Registry maps each identity to its set of live connections. Multiple
// simultaneous devices per identity are allowed; stale entries are
// reclaimed by the liveness monitor rather than by forced eviction.
//
// The registry holds non-owning references: a connection's lifecycle
// belongs to its pumps, and every mutation here happens inside a short
// critical section that is never held across a send.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]map[*Client]bool),
		logger:  logger.With("component", "registry"),
	}
}

// Join registers the connection under the identity and binds the
// connection's back-reference. Returns true if this brought the identity
// online (no prior connections).
func (r *Registry) Join(userID string, c *Client) bool {
	// A connection appears under at most one identity: rebinding to a new
	// identity first leaves the old one.
	if prev := c.UserID(); prev != "" && prev != userID {
		r.Leave(prev, c)
	}
	c.setUserID(userID)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[userID]
	if !ok {
		set = make(map[*Client]bool)
		r.clients[userID] = set
	}
	set[c] = true
	return !ok
}

// Leave removes the connection from the identity's set. Returns true if
// this took the identity offline (set became empty).
func (r *Registry) Leave(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[userID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.clients, userID)
		return true
	}
	return false
}

// RemoveConnection performs leave-style cleanup at transport disconnect.
// Returns the identity that owned the connection (empty if unbound) and
// whether the identity went offline.
func (r *Registry) RemoveConnection(c *Client) (string, bool) {
	userID := c.UserID()
	if userID == "" {
		return "", false
	}
	return userID, r.Leave(userID, c)
}

// Lookup returns the identity's live connections; empty if none.
func (r *Registry) Lookup(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.clients[userID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// Online reports whether the identity has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID]) > 0
}

// BroadcastAll sends the frame to every live connection of every
// identity. A failed send to one recipient never aborts the loop.
func (r *Registry) BroadcastAll(frame []byte) {
	for _, c := range r.snapshot() {
		_ = c.Send(frame)
	}
}

// SendToUser delivers the frame to every connection of one identity.
// Returns the number of successful sends.
func (r *Registry) SendToUser(userID string, frame []byte) int {
	delivered := 0
	for _, c := range r.Lookup(userID) {
		if err := c.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

// snapshot copies all connections so fan-out happens outside the lock.
func (r *Registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, set := range r.clients {
		for c := range set {
			clients = append(clients, c)
		}
	}
	return clients
}
