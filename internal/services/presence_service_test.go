package services

import (
	"testing"

	"relay-chat/internal/presence/presencetest"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlineIDs(t *testing.T, c *presencetest.Conn) []string {
	t.Helper()
	evt, ok := c.Last(wsdto.EventOnlineUsers)
	require.True(t, ok)
	return evt.Payload.(wsdto.OnlineUsersEvent).UserIDs
}

func TestConnectAnnouncesPresence(t *testing.T) {
	h := newHarness(t)
	alice, bob, mallory := h.user("alice"), h.user("bob"), h.user("mallory")
	h.block(mallory, alice)

	ac := h.connect(alice)
	mc := h.connect(mallory)
	bc := h.connect(bob)

	assert.ElementsMatch(t, []string{alice.UserID.String(), mallory.UserID.String()}, onlineIDs(t, bc))
	assert.Empty(t, onlineIDs(t, mc), "mallory blocked the only other online user")

	assert.Equal(t, 1, ac.Count(wsdto.EventUserOnline), "bob only")
	assert.Equal(t, 1, mc.Count(wsdto.EventUserOnline), "bob only")
	evt, _ := ac.Last(wsdto.EventUserOnline)
	assert.Equal(t, bob.UserID.String(), evt.Payload.(wsdto.PresenceEvent).UserID)
}

func TestReconnectReplacesConnection(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	bc := h.connect(bob)
	first := h.connect(alice)
	h.joinDirect(first, bob)
	bc.Reset()

	second := h.connect(alice)

	assert.True(t, first.Closed())
	assert.False(t, h.tracker.IsUserIn(alice.UserID, rooms.DirectRoom(alice.UserID, bob.UserID)))
	assert.False(t, h.presence.IsCurrent(first))
	assert.True(t, h.presence.IsCurrent(second))
	assert.Zero(t, bc.Count(wsdto.EventUserOnline), "alice never went offline")

	// the stale connection closing must not take alice offline
	h.presence.Disconnect(h.ctx, first)
	assert.True(t, h.registry.IsOnline(alice.UserID))
	assert.Zero(t, bc.Count(wsdto.EventUserOffline))

	h.presence.Disconnect(h.ctx, second)
	assert.False(t, h.registry.IsOnline(alice.UserID))
	assert.Equal(t, 1, bc.Count(wsdto.EventUserOffline))

	_, seen := h.mirror.lastSeen[alice.UserID]
	assert.True(t, seen)
}

func TestBlockHidesPresence(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	ac, bc := h.connect(alice), h.connect(bob)
	resetAll(ac, bc)

	require.NoError(t, h.users.Block(h.ctx, alice.UserID, bob.UserID))
	assert.Equal(t, 1, ac.Count(wsdto.EventUserOffline))
	assert.Equal(t, 1, bc.Count(wsdto.EventUserOffline))

	online, err := h.users.OnlineUsers(h.ctx, bob.UserID)
	require.NoError(t, err)
	assert.Empty(t, online)

	_, err = h.users.Presence(h.ctx, bob.UserID, alice.UserID)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)

	h.presence.Disconnect(h.ctx, ac)
	assert.Zero(t, bc.Count(wsdto.EventUserOnline))
	assert.Equal(t, 1, bc.Count(wsdto.EventUserOffline), "no offline notice across a block")

	require.NoError(t, h.users.Unblock(h.ctx, alice.UserID, bob.UserID))
	info, err := h.users.Presence(h.ctx, bob.UserID, alice.UserID)
	require.NoError(t, err)
	assert.False(t, info.Online)
	require.NotNil(t, info.LastSeen)

	err = h.users.Block(h.ctx, alice.UserID, alice.UserID)
	assert.ErrorIs(t, err, relay_errors.ErrInvalidInput)
}

func TestBlockAfterBlockStaysQuiet(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	ac, bc := h.connect(alice), h.connect(bob)

	require.NoError(t, h.users.Block(h.ctx, bob.UserID, alice.UserID))
	resetAll(ac, bc)

	require.NoError(t, h.users.Block(h.ctx, alice.UserID, bob.UserID))
	assert.Zero(t, ac.Count(wsdto.EventUserOffline))
	assert.Zero(t, bc.Count(wsdto.EventUserOffline))

	require.NoError(t, h.users.Block(h.ctx, bob.UserID, alice.UserID))
	assert.Zero(t, ac.Count(wsdto.EventUserOffline), "repeating a block is silent")
}

func TestRefreshMirrorReassertsOnlineUsers(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")
	h.connect(alice)

	h.mirror.mu.Lock()
	delete(h.mirror.online, alice.UserID)
	h.mirror.mu.Unlock()

	h.presence.refreshOnce(h.ctx)

	h.mirror.mu.Lock()
	defer h.mirror.mu.Unlock()
	assert.True(t, h.mirror.online[alice.UserID])
}
