package rooms

import (
	"testing"

	"relay-chat/internal/presence/presencetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDirectRoomIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, DirectRoom(a, b), DirectRoom(b, a))
	assert.NotEqual(t, DirectRoom(a, a), GroupRoom(a))
	assert.NotEqual(t, DirectRoom(a, b), DirectRoom(a, uuid.New()))
}

func TestJoinLeaveIdempotent(t *testing.T) {
	tr := NewTracker()
	c := presencetest.NewConn(uuid.New())
	room := GroupRoom(uuid.New())

	assert.True(t, tr.Join(c, room))
	assert.False(t, tr.Join(c, room))
	assert.Len(t, tr.Connections(room), 1)
	assert.True(t, tr.IsUserIn(c.UserID(), room))

	assert.True(t, tr.Leave(c, room))
	assert.False(t, tr.Leave(c, room))
	assert.Empty(t, tr.Connections(room))
	assert.Empty(t, tr.LeaveAll(c))
}

func TestLeaveAll(t *testing.T) {
	tr := NewTracker()
	c := presencetest.NewConn(uuid.New())
	other := presencetest.NewConn(uuid.New())
	g := GroupRoom(uuid.New())
	d := DirectRoom(c.UserID(), other.UserID())

	tr.Join(c, g)
	tr.Join(c, d)
	tr.Join(other, g)

	assert.ElementsMatch(t, []ID{g, d}, tr.LeaveAll(c))
	assert.False(t, tr.IsUserIn(c.UserID(), g))
	assert.True(t, tr.IsUserIn(other.UserID(), g))
	assert.Empty(t, tr.Connections(d))
}

func TestEvictRemovesOnlyThatUser(t *testing.T) {
	tr := NewTracker()
	removed := uuid.New()
	stale := presencetest.NewConn(removed)
	fresh := presencetest.NewConn(removed)
	stays := presencetest.NewConn(uuid.New())
	g := GroupRoom(uuid.New())

	tr.Join(stale, g)
	tr.Join(fresh, g)
	tr.Join(stays, g)

	assert.Equal(t, 2, tr.Evict(removed, g))
	assert.False(t, tr.IsUserIn(removed, g))
	assert.Len(t, tr.Connections(g), 1)
	assert.Equal(t, 0, tr.Evict(removed, g))
}
