// Package realtime holds the in-process state of live connections: which
// connection currently represents each user, which connections are joined to
// which broadcast rooms, and the Hub that executes push side effects
// (Intents) produced by the event services.
//
// All types are safe for concurrent use. Nothing here is package-level state;
// a Hub is created at startup and injected where needed.
package realtime

import "sync"

// Conn is a live client connection as seen by the realtime layer.
// Emit must not block: implementations queue the push and report
// ErrSendBufferFull when they cannot.
type Conn interface {
	ID() string
	UserID() uint
	Emit(event string, payload any) error
	Close() error
}

// Registry maps a user id to the single live connection representing that
// user. The most recently registered connection wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint]Conn)}
}

// Register records c as userID's connection, overwriting any previous entry.
// It returns the replaced connection, if any.
func (r *Registry) Register(userID uint, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = c
	return prev
}

// Unregister removes userID's entry only if it still refers to c, so a late
// disconnect of an older connection cannot evict a newer one. It reports
// whether an entry was removed.
func (r *Registry) Unregister(userID uint, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[userID]; ok && cur == c {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Lookup returns userID's live connection.
func (r *Registry) Lookup(userID uint) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Len returns the number of users online.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
