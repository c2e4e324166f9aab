package dispatch

import (
	"testing"
	"time"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/presence"
	"relay-chat/internal/presence/presencetest"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	registry *presence.Registry
	tracker  *rooms.Tracker
	d        *Dispatcher
}

func newFixture() *fixture {
	reg := presence.NewRegistry()
	tr := rooms.NewTracker()
	return &fixture{registry: reg, tracker: tr, d: New(reg, tr, nil, nil)}
}

func (f *fixture) connect(u user.User) *presencetest.Conn {
	c := presencetest.NewConn(u.ID)
	f.registry.Register(c)
	return c
}

func directMessage(from, to uuid.UUID) message.Message {
	return message.Message{
		ID:         uuid.New(),
		SenderID:   from,
		ReceiverID: uuid.NullUUID{UUID: to, Valid: true},
		Type:       message.TypeText,
		Text:       "hi",
		CreatedAt:  time.Now(),
	}
}

func TestDirectCreateSenderFirst(t *testing.T) {
	f := newFixture()
	alice := user.User{ID: uuid.New()}
	bob := user.User{ID: uuid.New()}
	ac := f.connect(alice)
	bc := f.connect(bob)

	f.d.Dispatch(Result{
		Op:              OpCreated,
		Message:         directMessage(alice.ID, bob.ID),
		Actor:           alice,
		Counterpart:     bob,
		ReadOnSend:      true,
		ClientMessageID: "c-1",
	})

	assert.Equal(t, []string{wsdto.EventMessageSent, wsdto.EventMessagesRead}, ac.Types())
	assert.Equal(t, []string{wsdto.EventReceiveMessage}, bc.Types())

	evt, ok := ac.Last(wsdto.EventMessageSent)
	require.True(t, ok)
	assert.Equal(t, "c-1", evt.Payload.(wsdto.MessageEvent).ClientMessageID)
}

func TestDirectBlockedSuppressesReceiver(t *testing.T) {
	f := newFixture()
	bob := user.User{ID: uuid.New()}
	alice := user.User{ID: uuid.New(), BlockedUsers: []uuid.UUID{bob.ID}}
	ac := f.connect(alice)
	bc := f.connect(bob)

	for _, op := range []Op{OpCreated, OpEdited, OpDeletedForEveryone} {
		f.d.Dispatch(Result{Op: op, Message: directMessage(bob.ID, alice.ID), Actor: bob, Counterpart: alice})
	}

	assert.Empty(t, ac.Types())
	assert.Equal(t, []string{wsdto.EventMessageSent, wsdto.EventMessageEdited, wsdto.EventMessageDeletedForEveryone}, bc.Types())
}

func TestDirectWithheldStaysHiddenAfterUnblock(t *testing.T) {
	f := newFixture()
	alice := user.User{ID: uuid.New()}
	bob := user.User{ID: uuid.New()}
	ac := f.connect(alice)
	f.connect(bob)

	msg := directMessage(bob.ID, alice.ID)
	msg.Withheld = true
	f.d.Dispatch(Result{Op: OpEdited, Message: msg, Actor: bob, Counterpart: alice})

	assert.Empty(t, ac.Types())
}

func TestDeletedForMeIsUnicast(t *testing.T) {
	f := newFixture()
	alice := user.User{ID: uuid.New()}
	bob := user.User{ID: uuid.New()}
	ac := f.connect(alice)
	bc := f.connect(bob)

	f.d.Dispatch(Result{Op: OpDeletedForMe, Message: directMessage(alice.ID, bob.ID), Actor: alice, Counterpart: bob})

	assert.Equal(t, []string{wsdto.EventMessageDeletedForMe}, ac.Types())
	assert.Empty(t, bc.Types())
}

func groupOf(members ...user.User) group.Group {
	g := group.Group{ID: uuid.New(), CreatedBy: members[0].ID, IsActive: true}
	for _, m := range members {
		g.Members = append(g.Members, group.Member{UserID: m.ID, Role: group.RoleMember})
	}
	return g
}

func groupMessage(g group.Group, from uuid.UUID, t message.Type) message.Message {
	return message.Message{
		ID:        uuid.New(),
		SenderID:  from,
		GroupID:   uuid.NullUUID{UUID: g.ID, Valid: true},
		Type:      t,
		Text:      "hello",
		CreatedAt: time.Now(),
	}
}

func TestGroupFanoutRespectsRoomAndBlocks(t *testing.T) {
	f := newFixture()
	alice := user.User{ID: uuid.New()}
	bob := user.User{ID: uuid.New()}
	carol := user.User{ID: uuid.New(), BlockedUsers: []uuid.UUID{alice.ID}}
	dave := user.User{ID: uuid.New()}
	g := groupOf(alice, bob, carol, dave)

	ac, bc, cc, dc := f.connect(alice), f.connect(bob), f.connect(carol), f.connect(dave)
	room := rooms.GroupRoom(g.ID)
	f.tracker.Join(ac, room)
	f.tracker.Join(bc, room)
	f.tracker.Join(cc, room)
	// dave is online but never joined the room

	f.d.Dispatch(Result{
		Op:           OpCreated,
		Message:      groupMessage(g, alice.ID, message.TypeText),
		Actor:        alice,
		Group:        g,
		Members:      []user.User{alice, bob, carol, dave},
		MemberUnread: map[uuid.UUID]int64{bob.ID: 3},
	})

	assert.Equal(t, []string{wsdto.EventNewMessage}, ac.Types())
	assert.Equal(t, []string{wsdto.EventNewMessage}, bc.Types())
	assert.Empty(t, cc.Types())
	assert.Empty(t, dc.Types())

	evt, _ := bc.Last(wsdto.EventNewMessage)
	payload := evt.Payload.(wsdto.MessageEvent)
	require.NotNil(t, payload.Summary)
	assert.Equal(t, int64(3), payload.Summary.UnreadCount)
}

func TestGroupSystemMessageIgnoresBlocks(t *testing.T) {
	f := newFixture()
	admin := user.User{ID: uuid.New()}
	member := user.User{ID: uuid.New(), BlockedUsers: []uuid.UUID{admin.ID}}
	g := groupOf(admin, member)

	mc := f.connect(member)
	f.tracker.Join(mc, rooms.GroupRoom(g.ID))

	f.d.Dispatch(Result{
		Op:      OpCreated,
		Message: groupMessage(g, admin.ID, message.TypeSystem),
		Actor:   admin,
		Group:   g,
		Members: []user.User{admin, member},
	})

	assert.Equal(t, []string{wsdto.EventNewMessage}, mc.Types())
}

func TestGroupSkipsStaleRoomMembers(t *testing.T) {
	f := newFixture()
	alice := user.User{ID: uuid.New()}
	gone := user.User{ID: uuid.New()}
	g := groupOf(alice)

	gc := f.connect(gone)
	f.tracker.Join(gc, rooms.GroupRoom(g.ID))

	f.d.Dispatch(Result{Op: OpCreated, Message: groupMessage(g, alice.ID, message.TypeText), Actor: alice, Group: g, Members: []user.User{alice}})

	assert.Empty(t, gc.Types())
}

func TestFullQueueIsDropped(t *testing.T) {
	f := newFixture()
	alice := user.User{ID: uuid.New()}
	bob := user.User{ID: uuid.New()}
	f.connect(alice)
	bc := f.connect(bob)
	bc.SetFull(true)

	assert.NotPanics(t, func() {
		f.d.Dispatch(Result{Op: OpCreated, Message: directMessage(alice.ID, bob.ID), Actor: alice, Counterpart: bob})
	})
	assert.Empty(t, bc.Types())
	assert.False(t, f.d.SendToUser(uuid.New(), wsdto.NewEvent(wsdto.EventUserOnline, nil)))
}
