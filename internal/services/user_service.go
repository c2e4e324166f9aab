package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-chat/internal/dispatch"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/policy"
	"relay-chat/internal/presence"
	"relay-chat/internal/repository"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	repo       repository.UserRepository
	registry   *presence.Registry
	dispatcher *dispatch.Dispatcher
	mirror     PresenceMirror
	logger     *zap.Logger
}

func NewUserService(repo repository.UserRepository, registry *presence.Registry, dispatcher *dispatch.Dispatcher, mirror PresenceMirror, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, registry: registry, dispatcher: dispatcher, mirror: mirror, logger: logger}
}

// PresenceInfo is what one user may learn about another's connectivity.
type PresenceInfo struct {
	UserID   uuid.UUID
	Online   bool
	LastSeen *time.Time
}

func (s *UserService) GetByID(ctx context.Context, userID uuid.UUID) (user.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return user.User{}, relay_errors.NotFound("user not found")
		}
		return user.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// Block stops delivery between the two users in both directions. If both
// are online they stop seeing each other's presence at once.
func (s *UserService) Block(ctx context.Context, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return relay_errors.Invalid("cannot block yourself")
	}
	other, err := s.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	me, err := s.repo.GetByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	// an existing block in either direction already hid presence
	wasVisible := policy.CanDeliver(me, other)
	if err := s.repo.Block(ctx, actorID, targetID); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	if wasVisible {
		s.exchangePresence(actorID, targetID, wsdto.EventUserOffline)
	}
	s.logger.Info("user blocked", zap.String("user_id", actorID.String()), zap.String("target_id", targetID.String()))
	return nil
}

func (s *UserService) Unblock(ctx context.Context, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return relay_errors.Invalid("cannot unblock yourself")
	}
	if _, err := s.GetByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.repo.Unblock(ctx, actorID, targetID); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}

	me, err := s.repo.GetByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	other, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	// The other side may still hold its own block.
	if policy.CanDeliver(me, other) {
		s.exchangePresence(actorID, targetID, wsdto.EventUserOnline)
	}
	s.logger.Info("user unblocked", zap.String("user_id", actorID.String()), zap.String("target_id", targetID.String()))
	return nil
}

func (s *UserService) exchangePresence(a, b uuid.UUID, eventType string) {
	if !s.registry.IsOnline(a) || !s.registry.IsOnline(b) {
		return
	}
	s.dispatcher.SendToUser(a, wsdto.NewEvent(eventType, wsdto.PresenceEvent{UserID: b.String()}))
	s.dispatcher.SendToUser(b, wsdto.NewEvent(eventType, wsdto.PresenceEvent{UserID: a.String()}))
}

// OnlineUsers lists online identities the viewer may see.
func (s *UserService) OnlineUsers(ctx context.Context, viewerID uuid.UUID) ([]uuid.UUID, error) {
	me, err := s.GetByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	others, err := s.repo.GetMany(ctx, s.registry.OnlineUserIDs())
	if err != nil {
		return nil, fmt.Errorf("load online users: %w", err)
	}
	return policy.FilterVisible(me, others), nil
}

func (s *UserService) Presence(ctx context.Context, viewerID, targetID uuid.UUID) (PresenceInfo, error) {
	me, err := s.GetByID(ctx, viewerID)
	if err != nil {
		return PresenceInfo{}, err
	}
	other, err := s.GetByID(ctx, targetID)
	if err != nil {
		return PresenceInfo{}, err
	}
	if !policy.CanDeliver(me, other) {
		return PresenceInfo{}, relay_errors.Forbidden("presence is not available for this user")
	}

	info := PresenceInfo{UserID: targetID, Online: s.registry.IsOnline(targetID)}
	if info.Online || s.mirror == nil {
		return info, nil
	}
	at, ok, err := s.mirror.LastSeen(ctx, targetID)
	if err != nil {
		s.logger.Warn("last seen lookup failed", zap.String("user_id", targetID.String()), zap.Error(err))
		return info, nil
	}
	if ok {
		info.LastSeen = &at
	}
	return info, nil
}
