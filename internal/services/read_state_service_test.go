package services

import (
	"testing"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkDirectRead(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	ac, bc := h.connect(alice), h.connect(bob)
	h.sendText(alice, bob, "one")
	h.sendText(alice, bob, "two")
	h.sendText(bob, alice, "reply")
	resetAll(ac, bc)

	sum, err := h.reads.MarkDirectRead(h.ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Zero(t, sum.UnreadCount)
	require.NotNil(t, sum.LastMessage)
	assert.Equal(t, "reply", sum.LastMessage.Text)

	assert.Equal(t, []string{wsdto.EventMessagesRead}, ac.Types())
	evt, _ := ac.Last(wsdto.EventMessagesRead)
	assert.Equal(t, bob.UserID.String(), evt.Payload.(wsdto.ReadEvent).ReaderID)

	mine, _ := bc.Last(wsdto.EventMessagesRead)
	require.NotNil(t, mine.Payload.(wsdto.ReadEvent).UnreadCount)

	// alice's reply to bob is still unread on her side
	aliceSum, err := h.summaries.Direct(h.ctx, alice.UserID, bob.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, aliceSum.UnreadCount)

	// nothing left to flip: the other side is not told again
	_, err = h.reads.MarkDirectRead(h.ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, ac.Count(wsdto.EventMessagesRead))
	assert.Equal(t, 2, bc.Count(wsdto.EventMessagesRead))
}

func TestMarkDirectReadAcrossBlock(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	ac := h.connect(alice)
	h.sendText(alice, bob, "hi")
	h.block(bob, alice)
	ac.Reset()

	_, err := h.reads.MarkDirectRead(h.ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Zero(t, ac.Count(wsdto.EventMessagesRead))

	_, err = h.reads.MarkDirectRead(h.ctx, bob, bob.UserID)
	assert.ErrorIs(t, err, relay_errors.ErrInvalidInput)
	_, err = h.reads.MarkDirectRead(h.ctx, bob, uuid.New())
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
}

func TestMarkDirectReadIgnoresWithheld(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	ac := h.connect(alice)
	h.block(bob, alice)
	hidden := h.sendText(alice, bob, "are you there")
	require.NoError(t, h.users.Unblock(h.ctx, bob.UserID, alice.UserID))
	ac.Reset()

	_, err := h.reads.MarkDirectRead(h.ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Zero(t, ac.Count(wsdto.EventMessagesRead), "bob never saw the message")

	stored, err := h.store.Messages.GetByID(h.ctx, hidden)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)

	h.sendText(alice, bob, "now?")
	_, err = h.reads.MarkDirectRead(h.ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, ac.Count(wsdto.EventMessagesRead))
}

func TestHistoryPaging(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user("alice"), h.user("bob")
	var ids []uuid.UUID
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, h.sendText(alice, bob, text))
	}

	page, err := h.history.DirectMessages(h.ctx, bob.UserID, alice.UserID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID, "oldest first within the page")
	assert.Equal(t, ids[4], page[1].ID)

	older, err := h.history.DirectMessages(h.ctx, bob.UserID, alice.UserID, page[0].CreatedAt, 2)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, ids[1], older[0].ID)
	assert.Equal(t, ids[2], older[1].ID)

	_, err = h.history.GroupMessages(h.ctx, bob.UserID, uuid.New(), time.Time{}, 0)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)

	g := h.newGroup(alice)
	_, err = h.history.GroupMessages(h.ctx, bob.UserID, g.ID, time.Time{}, 0)
	assert.ErrorIs(t, err, relay_errors.ErrForbidden)
}

func TestListConversations(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol, dave := h.user("alice"), h.user("bob"), h.user("carol"), h.user("dave")

	h.sendText(bob, alice, "from bob")
	g := h.newGroup(carol, alice)
	h.sendGroupText(carol, g.ID, "group news")
	h.sendText(dave, alice, "from dave")
	hidden := h.sendText(alice, carol, "to carol")
	_, err := h.messages.DeleteForMe(h.ctx, alice, hidden)
	require.NoError(t, err)

	list, err := h.summaries.ListConversations(h.ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, list, 3, "the chat with carol has nothing visible")

	assert.Equal(t, conversation.KindDirect, list[0].Kind)
	assert.Equal(t, dave.UserID, list[0].OtherUserID)
	assert.Equal(t, conversation.KindGroup, list[1].Kind)
	assert.Equal(t, g.ID, list[1].GroupID)
	assert.EqualValues(t, 1, list[1].UnreadCount)
	assert.Equal(t, bob.UserID, list[2].OtherUserID)
	assert.EqualValues(t, 1, list[2].UnreadCount)
}
