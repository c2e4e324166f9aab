package services

import (
	"context"
	"fmt"
	"time"

	"relay-chat/internal/dispatch"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/metrics"
	"relay-chat/internal/policy"
	"relay-chat/internal/presence"
	"relay-chat/internal/repository"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PresenceMirror keeps a copy of presence outside the process so last-seen
// survives restarts.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error
	LastSeen(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
}

type PresenceService struct {
	registry   *presence.Registry
	rooms      *rooms.Tracker
	users      repository.UserRepository
	dispatcher *dispatch.Dispatcher
	mirror     PresenceMirror
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        Clock
}

func NewPresenceService(
	registry *presence.Registry,
	tracker *rooms.Tracker,
	users repository.UserRepository,
	dispatcher *dispatch.Dispatcher,
	mirror PresenceMirror,
	m *metrics.Metrics,
	logger *zap.Logger,
	clock Clock,
) *PresenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceService{
		registry:   registry,
		rooms:      tracker,
		users:      users,
		dispatcher: dispatcher,
		mirror:     mirror,
		metrics:    m,
		logger:     logger,
		now:        clockOrDefault(clock),
	}
}

// Connect registers c as the active connection of its identity, sends it the
// filtered online snapshot and announces the identity if it just came online.
// A previous connection of the same identity is closed.
func (s *PresenceService) Connect(ctx context.Context, c presence.Conn) error {
	unlock := s.registry.Lock(c.UserID())
	defer unlock()

	me, err := s.users.GetByID(ctx, c.UserID())
	if err != nil {
		return fmt.Errorf("load connecting user: %w", err)
	}

	replaced, cameOnline := s.registry.Register(c)
	if replaced != nil {
		s.rooms.LeaveAll(replaced)
		replaced.Close()
		s.logger.Info("connection replaced",
			zap.String("user_id", me.ID.String()),
			zap.String("old_client_id", replaced.ID()),
			zap.String("client_id", c.ID()),
		)
	}
	s.metrics.SetConnections(s.registry.Count())

	visible := s.visibleOnline(ctx, me)
	ids := make([]string, 0, len(visible))
	for _, id := range visible {
		ids = append(ids, id.String())
	}
	s.dispatcher.SendToConn(c, wsdto.NewEvent(wsdto.EventOnlineUsers, wsdto.OnlineUsersEvent{UserIDs: ids}))

	if !cameOnline {
		return nil
	}
	s.metrics.RecordPresence("online")
	if s.mirror != nil {
		if err := s.mirror.SetOnline(ctx, me.ID); err != nil {
			s.logger.Warn("presence mirror online failed", zap.String("user_id", me.ID.String()), zap.Error(err))
		}
	}
	evt := wsdto.NewEvent(wsdto.EventUserOnline, wsdto.PresenceEvent{UserID: me.ID.String()})
	for _, id := range visible {
		s.dispatcher.SendToUser(id, evt)
	}
	return nil
}

// Disconnect drops c from every room and, if it was still the active
// connection, announces the identity as offline.
func (s *PresenceService) Disconnect(ctx context.Context, c presence.Conn) {
	unlock := s.registry.Lock(c.UserID())
	defer unlock()

	s.rooms.LeaveAll(c)
	wentOffline := s.registry.Unregister(c)
	s.metrics.SetConnections(s.registry.Count())
	if !wentOffline {
		return
	}
	s.metrics.RecordPresence("offline")

	if s.mirror != nil {
		if err := s.mirror.SetOffline(ctx, c.UserID(), s.now()); err != nil {
			s.logger.Warn("presence mirror offline failed", zap.String("user_id", c.UserID().String()), zap.Error(err))
		}
	}

	me, err := s.users.GetByID(ctx, c.UserID())
	if err != nil {
		s.logger.Error("load disconnecting user", zap.String("user_id", c.UserID().String()), zap.Error(err))
		return
	}
	evt := wsdto.NewEvent(wsdto.EventUserOffline, wsdto.PresenceEvent{UserID: me.ID.String()})
	for _, id := range s.visibleOnline(ctx, me) {
		s.dispatcher.SendToUser(id, evt)
	}
}

// IsCurrent reports whether c has not been replaced by a newer connection
// of the same identity.
func (s *PresenceService) IsCurrent(c presence.Conn) bool {
	return s.registry.IsCurrent(c)
}

// visibleOnline lists the online identities with no block in either
// direction with me.
func (s *PresenceService) visibleOnline(ctx context.Context, me user.User) []uuid.UUID {
	online := s.registry.OnlineUserIDs()
	others, err := s.users.GetMany(ctx, online)
	if err != nil {
		s.logger.Warn("load online users failed", zap.Error(err))
		return nil
	}
	return policy.FilterVisible(me, others)
}

// RefreshMirror re-asserts every online user in the mirror each interval so
// mirrored entries do not expire under long-lived connections. It returns
// when ctx is done.
func (s *PresenceService) RefreshMirror(ctx context.Context, interval time.Duration) error {
	if s.mirror == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *PresenceService) refreshOnce(ctx context.Context) {
	for _, id := range s.registry.OnlineUserIDs() {
		if err := s.mirror.SetOnline(ctx, id); err != nil {
			s.logger.Warn("presence mirror refresh failed", zap.String("user_id", id.String()), zap.Error(err))
			return
		}
	}
}
