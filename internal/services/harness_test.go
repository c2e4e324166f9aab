package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"relay-chat/internal/dispatch"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/presence"
	"relay-chat/internal/presence/presencetest"
	"relay-chat/internal/repository"
	"relay-chat/internal/rooms"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testClock advances by step on every reading so that consecutive writes
// get distinct timestamps.
type testClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// SetNext makes the next reading return t.
func (c *testClock) SetNext(t time.Time) {
	c.mu.Lock()
	c.now = t.Add(-c.step)
	c.mu.Unlock()
}

type fakeMirror struct {
	mu       sync.Mutex
	online   map[uuid.UUID]bool
	lastSeen map[uuid.UUID]time.Time
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{online: map[uuid.UUID]bool{}, lastSeen: map[uuid.UUID]time.Time{}}
}

func (m *fakeMirror) SetOnline(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[id] = true
	return nil
}

func (m *fakeMirror) SetOffline(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[id] = false
	m.lastSeen[id] = at
	return nil
}

func (m *fakeMirror) LastSeen(_ context.Context, id uuid.UUID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.lastSeen[id]
	return at, ok, nil
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *testClock
	store repository.Store

	registry   *presence.Registry
	tracker    *rooms.Tracker
	dispatcher *dispatch.Dispatcher
	mirror     *fakeMirror

	summaries *SummaryService
	messages  *MessageService
	reads     *ReadStateService
	groups    *GroupService
	history   *HistoryService
	users     *UserService
	presence  *PresenceService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil, nil)
}

func newHarnessWith(t *testing.T, media MediaVerifier, limiter SendLimiter) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		clock:    newTestClock(),
		store:    repository.NewMemoryStore(),
		registry: presence.NewRegistry(),
		tracker:  rooms.NewTracker(),
		mirror:   newFakeMirror(),
	}
	clock := Clock(h.clock.Now)
	h.dispatcher = dispatch.New(h.registry, h.tracker, nil, nil)
	h.summaries = NewSummaryService(h.store.Messages, h.store.Groups, nil)
	h.messages = NewMessageService(MessageServiceDeps{
		Users:      h.store.Users,
		Messages:   h.store.Messages,
		Groups:     h.store.Groups,
		Summaries:  h.summaries,
		Dispatcher: h.dispatcher,
		Rooms:      h.tracker,
		Media:      media,
		Limiter:    limiter,
		Clock:      clock,
	})
	h.reads = NewReadStateService(h.store.Users, h.store.Messages, h.store.Groups, h.summaries, h.dispatcher, nil, clock)
	h.groups = NewGroupService(h.store.Users, h.store.Groups, h.messages, h.dispatcher, h.tracker, nil, clock)
	h.history = NewHistoryService(h.store.Users, h.store.Messages, h.store.Groups, 50, 100)
	h.users = NewUserService(h.store.Users, h.registry, h.dispatcher, h.mirror, nil)
	h.presence = NewPresenceService(h.registry, h.tracker, h.store.Users, h.dispatcher, h.mirror, nil, nil, clock)
	return h
}

func (h *harness) user(name string) user.Identity {
	h.t.Helper()
	u := user.User{ID: uuid.New(), Username: name}
	require.NoError(h.t, h.store.Users.Create(h.ctx, &u))
	return u.Identity()
}

func (h *harness) connect(id user.Identity) *presencetest.Conn {
	h.t.Helper()
	c := presencetest.NewConn(id.UserID)
	require.NoError(h.t, h.presence.Connect(h.ctx, c))
	return c
}

func (h *harness) block(by, target user.Identity) {
	h.t.Helper()
	require.NoError(h.t, h.store.Users.Block(h.ctx, by.UserID, target.UserID))
}

func (h *harness) joinDirect(c *presencetest.Conn, other user.Identity) {
	h.tracker.Join(c, rooms.DirectRoom(c.UserID(), other.UserID))
}

func (h *harness) joinGroup(c *presencetest.Conn, groupID uuid.UUID) {
	h.t.Helper()
	_, err := h.groups.EnsureActiveMember(h.ctx, c.UserID(), groupID)
	require.NoError(h.t, err)
	h.tracker.Join(c, rooms.GroupRoom(groupID))
}

func (h *harness) sendText(from, to user.Identity, text string) uuid.UUID {
	h.t.Helper()
	m, err := h.messages.SendDirect(h.ctx, from, SendDirectInput{ReceiverID: to.UserID, Type: message.TypeText, Text: text})
	require.NoError(h.t, err)
	return m.ID
}

func (h *harness) sendGroupText(from user.Identity, groupID uuid.UUID, text string) uuid.UUID {
	h.t.Helper()
	m, err := h.messages.SendGroup(h.ctx, from, SendGroupInput{GroupID: groupID, Type: message.TypeText, Text: text})
	require.NoError(h.t, err)
	return m.ID
}

func resetAll(conns ...*presencetest.Conn) {
	for _, c := range conns {
		c.Reset()
	}
}
