package presence

import (
	"sync"

	"relay-chat/internal/transport/wsdto"

	"github.com/google/uuid"
)

// Conn is a live, authenticated client connection.
type Conn interface {
	ID() string
	UserID() uuid.UUID
	// Send queues evt for delivery and reports whether it was accepted.
	Send(evt wsdto.Event) bool
	Close()
}

// Registry maps identities to their single active connection. The most
// recently registered connection wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Conn
	locks *keyedMutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]Conn),
		locks: newKeyedMutex(),
	}
}

// Lock serializes presence transitions of one identity. Callers hold it
// around Register/Unregister and the notifications that follow.
func (r *Registry) Lock(userID uuid.UUID) func() {
	return r.locks.Lock(userID)
}

// Register makes c the active connection of its identity. It returns the
// connection it replaced, if any, and whether the identity went from
// offline to online.
func (r *Registry) Register(c Conn) (replaced Conn, cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.conns[c.UserID()]
	r.conns[c.UserID()] = c
	if ok && prev != c {
		return prev, false
	}
	return nil, !ok
}

// Unregister removes c if it is still the active connection of its identity.
// A stale connection closing after a reconnect leaves the entry alone.
func (r *Registry) Unregister(c Conn) (wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[c.UserID()]
	if !ok || cur.ID() != c.ID() {
		return false
	}
	delete(r.conns, c.UserID())
	return true
}

func (r *Registry) Get(userID uuid.UUID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.Get(userID)
	return ok
}

// IsCurrent reports whether c is still the active connection of its identity.
func (r *Registry) IsCurrent(c Conn) bool {
	cur, ok := r.Get(c.UserID())
	return ok && cur.ID() == c.ID()
}

func (r *Registry) OnlineUserIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
