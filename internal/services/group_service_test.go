package services

import (
	"testing"
	"time"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) newGroup(creator user.Identity, members ...user.Identity) group.Group {
	h.t.Helper()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	g, err := h.groups.Create(h.ctx, creator, CreateGroupInput{Name: "crew", MemberIDs: ids})
	require.NoError(h.t, err)
	return g
}

func TestCreateGroup(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	bc := h.connect(bob)
	bc.Reset()

	g := h.newGroup(alice, bob, bob)

	assert.True(t, g.IsAdmin(alice.UserID))
	assert.True(t, g.IsMember(bob.UserID))
	assert.False(t, g.IsAdmin(bob.UserID))
	assert.Len(t, g.Members, 2)
	assert.Equal(t, 1, bc.Count(wsdto.EventGroupCreated))

	history, err := h.history.GroupMessages(h.ctx, bob.UserID, g.ID, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, message.TypeSystem, history[0].Type)
	assert.Equal(t, "alice created the group", history[0].Text)

	_, err = h.groups.Create(h.ctx, alice, CreateGroupInput{Name: "  "})
	assert.ErrorIs(t, err, relay_errors.ErrInvalidInput)
	_, err = h.groups.Create(h.ctx, alice, CreateGroupInput{Name: "x", MemberIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
}

func TestGroupSendFanOut(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol, dave := h.user("alice"), h.user("bob"), h.user("carol"), h.user("dave")
	g := h.newGroup(alice, bob, carol, dave)
	h.block(carol, alice)

	ac, bc, cc, dc := h.connect(alice), h.connect(bob), h.connect(carol), h.connect(dave)
	h.joinGroup(ac, g.ID)
	h.joinGroup(bc, g.ID)
	h.joinGroup(cc, g.ID)
	resetAll(ac, bc, cc, dc)

	h.sendGroupText(alice, g.ID, "hi all")

	assert.Equal(t, []string{wsdto.EventNewMessage}, ac.Types())
	assert.Equal(t, []string{wsdto.EventNewMessage}, bc.Types())
	assert.Empty(t, cc.Types(), "carol blocked the sender")
	assert.Empty(t, dc.Types(), "dave is not in the room")

	evt, _ := bc.Last(wsdto.EventNewMessage)
	payload := evt.Payload.(wsdto.MessageEvent)
	require.NotNil(t, payload.Summary)
	assert.EqualValues(t, 1, payload.Summary.UnreadCount)

	// blocks do not touch membership or history
	carolView, err := h.history.GroupMessages(h.ctx, carol.UserID, g.ID, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, carolView, 2)

	sum, err := h.summaries.Group(h.ctx, mustGroup(h, g.ID), dave.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.UnreadCount)
}

func mustGroup(h *harness, id uuid.UUID) group.Group {
	h.t.Helper()
	g, err := h.store.Groups.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return g
}

func TestAdminRemovesMember(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol := h.user("alice"), h.user("bob"), h.user("carol")
	g := h.newGroup(alice, bob, carol)

	ac, bc, cc := h.connect(alice), h.connect(bob), h.connect(carol)
	h.joinGroup(ac, g.ID)
	h.joinGroup(bc, g.ID)
	h.joinGroup(cc, g.ID)

	before := h.sendGroupText(alice, g.ID, "before")
	resetAll(ac, bc, cc)

	_, err := h.groups.RemoveMember(h.ctx, alice, g.ID, bob.UserID)
	require.NoError(t, err)

	assert.False(t, h.tracker.IsUserIn(bob.UserID, rooms.GroupRoom(g.ID)))
	assert.Equal(t, []string{wsdto.EventMemberRemovedFromGroup}, bc.Types())
	assert.Equal(t, []string{wsdto.EventNewMessage, wsdto.EventGroupMemberRemoved}, cc.Types())

	after := h.sendGroupText(alice, g.ID, "after")
	assert.Zero(t, bc.Count(wsdto.EventNewMessage))
	assert.Equal(t, 2, cc.Count(wsdto.EventNewMessage))

	bobView, err := h.history.GroupMessages(h.ctx, bob.UserID, g.ID, time.Time{}, 0)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(bobView))
	for _, m := range bobView {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, before)
	assert.NotContains(t, ids, after)

	_, err = h.messages.SendGroup(h.ctx, bob, SendGroupInput{GroupID: g.ID, Type: message.TypeText, Text: "let me in"})
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)
	_, err = h.reads.MarkGroupRead(h.ctx, bob, g.ID)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)
	_, err = h.groups.EnsureActiveMember(h.ctx, bob.UserID, g.ID)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)
	_, err = h.messages.DeleteForMe(h.ctx, bob, before)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)

	// ex-members still see the group and its frozen summary
	got, err := h.groups.Get(h.ctx, bob.UserID, g.ID)
	require.NoError(t, err)
	_, kind, departed := got.Departure(bob.UserID)
	require.True(t, departed)
	assert.Equal(t, group.DepartureRemoved, kind)
	sum, err := h.summaries.Group(h.ctx, got, bob.UserID)
	require.NoError(t, err)
	require.NotNil(t, sum.LastMessage)
	assert.NotEqual(t, after, sum.LastMessage.ID)
}

func TestRemoveMemberRules(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol := h.user("alice"), h.user("bob"), h.user("carol")
	g := h.newGroup(alice, bob)

	_, err := h.groups.RemoveMember(h.ctx, bob, g.ID, alice.UserID)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden, "members cannot remove")
	_, err = h.groups.RemoveMember(h.ctx, alice, g.ID, carol.UserID)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
	_, err = h.groups.RemoveMember(h.ctx, alice, g.ID, alice.UserID)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden, "creator cannot be removed")
	err = h.groups.Leave(h.ctx, alice, g.ID)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden, "creator cannot leave")
}

func TestLeaveAndRejoin(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	g := h.newGroup(alice, bob)
	ac, bc := h.connect(alice), h.connect(bob)
	h.joinGroup(bc, g.ID)
	resetAll(ac, bc)

	require.NoError(t, h.groups.Leave(h.ctx, bob, g.ID))
	assert.False(t, h.tracker.IsUserIn(bob.UserID, rooms.GroupRoom(g.ID)))
	assert.Equal(t, 1, bc.Count(wsdto.EventGroupMemberLeft))
	assert.Equal(t, 1, ac.Count(wsdto.EventGroupMemberLeft))

	_, kind, departed := mustGroup(h, g.ID).Departure(bob.UserID)
	require.True(t, departed)
	assert.Equal(t, group.DepartureLeft, kind)

	h.sendGroupText(alice, g.ID, "while away")

	rejoined, err := h.groups.AddMembers(h.ctx, alice, g.ID, []uuid.UUID{bob.UserID})
	require.NoError(t, err)
	assert.True(t, rejoined.IsMember(bob.UserID))
	_, _, departed = rejoined.Departure(bob.UserID)
	assert.False(t, departed)
	assert.Equal(t, 1, bc.Count(wsdto.EventGroupCreated))

	sum, err := h.summaries.Group(h.ctx, rejoined, bob.UserID)
	require.NoError(t, err)
	assert.Zero(t, sum.UnreadCount, "system notices never count as unread")

	_, err = h.groups.AddMembers(h.ctx, bob, g.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)
}

func TestGroupUnreadSkipsSystemNotices(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol := h.user("alice"), h.user("bob"), h.user("carol")
	g := h.newGroup(alice, bob, carol)

	_, err := h.groups.RemoveMember(h.ctx, alice, g.ID, carol.UserID)
	require.NoError(t, err)
	sum, err := h.summaries.Group(h.ctx, mustGroup(h, g.ID), bob.UserID)
	require.NoError(t, err)
	assert.Zero(t, sum.UnreadCount)
	require.NotNil(t, sum.LastMessage)
	assert.Equal(t, message.TypeSystem, sum.LastMessage.Type, "notices still lead the summary")

	h.sendGroupText(alice, g.ID, "welcome")
	sum, err = h.summaries.Group(h.ctx, mustGroup(h, g.ID), bob.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.UnreadCount)
}

func TestGroupMarkReadIsMonotonic(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	g := h.newGroup(alice, bob)
	bc := h.connect(bob)

	h.sendGroupText(alice, g.ID, "one")
	h.sendGroupText(alice, g.ID, "two")

	sum, err := h.summaries.Group(h.ctx, mustGroup(h, g.ID), bob.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.UnreadCount)

	bc.Reset()
	first, err := h.reads.MarkGroupRead(h.ctx, bob, g.ID)
	require.NoError(t, err)
	assert.Zero(t, first.UnreadCount)
	m1, _ := mustGroup(h, g.ID).Member(bob.UserID)

	second, err := h.reads.MarkGroupRead(h.ctx, bob, g.ID)
	require.NoError(t, err)
	assert.Zero(t, second.UnreadCount)
	m2, _ := mustGroup(h, g.ID).Member(bob.UserID)
	assert.False(t, m2.LastReadAt.Before(m1.LastReadAt))

	assert.Equal(t, 2, bc.Count(wsdto.EventMessagesRead))
	evt, _ := bc.Last(wsdto.EventMessagesRead)
	payload := evt.Payload.(wsdto.ReadEvent)
	assert.Equal(t, g.ID.String(), payload.GroupID)
	require.NotNil(t, payload.UnreadCount)
	assert.Zero(t, *payload.UnreadCount)

	// a clock running behind cannot move the marker back
	h.clock.SetNext(m2.LastReadAt.Add(-time.Hour))
	_, err = h.reads.MarkGroupRead(h.ctx, bob, g.ID)
	require.NoError(t, err)
	m3, _ := mustGroup(h, g.ID).Member(bob.UserID)
	assert.Equal(t, m2.LastReadAt, m3.LastReadAt)
}

func TestGroupEditAndTombstoneRefreshLatest(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	g := h.newGroup(alice, bob)
	bc := h.connect(bob)
	h.joinGroup(bc, g.ID)

	id := h.sendGroupText(alice, g.ID, "draft")
	bc.Reset()

	_, err := h.messages.Edit(h.ctx, alice, id, "final")
	require.NoError(t, err)
	_, err = h.messages.DeleteForEveryone(h.ctx, alice, id)
	require.NoError(t, err)

	assert.Equal(t, []string{wsdto.EventMessageEdited, wsdto.EventMessageDeletedForEveryone}, bc.Types())

	cached := mustGroup(h, g.ID).LatestMessage
	require.NotNil(t, cached)
	assert.Equal(t, id, cached.MessageID)
	assert.Equal(t, message.TombstoneText, cached.Text)

	// hiding it for bob falls back to the previous visible message
	_, err = h.messages.DeleteForMe(h.ctx, bob, id)
	require.NoError(t, err)
	sum, err := h.summaries.Group(h.ctx, mustGroup(h, g.ID), bob.UserID)
	require.NoError(t, err)
	require.NotNil(t, sum.LastMessage)
	assert.Equal(t, message.TypeSystem, sum.LastMessage.Type)
}
