package server

import (
	"sync"
)

// ConnectionRegistry maps an account id to its single live client. A new
// connection from the same account replaces the prior entry; the replaced
// client is returned so the caller can close it.
type ConnectionRegistry struct {
	mu    sync.Mutex
	conns map[int]*Client
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[int]*Client),
	}
}

// Register inserts or replaces the entry for userId and returns the client
// it displaced, or nil.
func (r *ConnectionRegistry) Register(userId int, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.conns[userId]
	if old == c {
		return nil
	}
	r.conns[userId] = c

	return old
}

// Resolve returns the live client for userId, or nil when the user is not
// currently connected.
func (r *ConnectionRegistry) Resolve(userId int) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conns[userId]
}

// Unregister removes the entry for userId only if it still refers to c, so
// a stale disconnect never clobbers a newer registration.
func (r *ConnectionRegistry) Unregister(userId int, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[userId] != c {
		return false
	}
	delete(r.conns, userId)

	return true
}

// BroadcastAll queues frame on every client satisfying pred (nil matches
// all). Entries whose send buffer rejects the frame are dropped from the
// registry and stopped.
func (r *ConnectionRegistry) BroadcastAll(pred func(*Client) bool, frame *ServerFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userId, c := range r.conns {
		if pred != nil && !pred(c) {
			continue
		}

		if !c.queueFrame(frame) {
			delete(r.conns, userId)
			c.stopClient()
		}
	}
}

// Each calls fn for every registered client while holding the registry
// lock. fn must not call back into the registry.
func (r *ConnectionRegistry) Each(fn func(*Client)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conns {
		fn(c)
	}
}

func (r *ConnectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}
