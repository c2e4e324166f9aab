package rooms

import (
	"bytes"
	"sync"

	"relay-chat/internal/presence"

	"github.com/google/uuid"
)

// ID names a delivery topic.
type ID string

const (
	directPrefix = "direct:"
	groupPrefix  = "group:"
)

// DirectRoom is keyed by the sorted pair so both sides compute the same id.
func DirectRoom(a, b uuid.UUID) ID {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return ID(directPrefix + a.String() + ":" + b.String())
}

func GroupRoom(groupID uuid.UUID) ID {
	return ID(groupPrefix + groupID.String())
}

// Tracker records which rooms each connection joined.
type Tracker struct {
	mu     sync.RWMutex
	byConn map[string]map[ID]struct{}
	byRoom map[ID]map[string]presence.Conn
}

func NewTracker() *Tracker {
	return &Tracker{
		byConn: make(map[string]map[ID]struct{}),
		byRoom: make(map[ID]map[string]presence.Conn),
	}
}

// Join is idempotent; it reports whether c was newly added.
func (t *Tracker) Join(c presence.Conn, room ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.byRoom[room]
	if !ok {
		members = make(map[string]presence.Conn)
		t.byRoom[room] = members
	}
	if _, joined := members[c.ID()]; joined {
		return false
	}
	members[c.ID()] = c

	joined, ok := t.byConn[c.ID()]
	if !ok {
		joined = make(map[ID]struct{})
		t.byConn[c.ID()] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave is idempotent; it reports whether c was a member.
func (t *Tracker) Leave(c presence.Conn, room ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(c.ID(), room)
}

func (t *Tracker) leaveLocked(connID string, room ID) bool {
	members, ok := t.byRoom[room]
	if !ok {
		return false
	}
	if _, joined := members[connID]; !joined {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(t.byRoom, room)
	}
	if joined, ok := t.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(t.byConn, connID)
		}
	}
	return true
}

// LeaveAll drops every room of c and returns them.
func (t *Tracker) LeaveAll(c presence.Conn) []ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	joined := t.byConn[c.ID()]
	rooms := make([]ID, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		t.leaveLocked(c.ID(), room)
	}
	return rooms
}

// Evict removes every connection of userID from room and returns how many
// were removed.
func (t *Tracker) Evict(userID uuid.UUID, room ID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id, c := range t.byRoom[room] {
		if c.UserID() == userID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		t.leaveLocked(id, room)
	}
	return len(ids)
}

// Connections returns a snapshot of the connections joined to room.
func (t *Tracker) Connections(room ID) []presence.Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.byRoom[room]
	out := make([]presence.Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// IsUserIn reports whether any connection of userID is joined to room.
func (t *Tracker) IsUserIn(userID uuid.UUID, room ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.byRoom[room] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}
