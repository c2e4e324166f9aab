package services

import (
	"context"
	"errors"
	"fmt"

	"relay-chat/internal/dispatch"
	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/policy"
	"relay-chat/internal/repository"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReadStateService moves read markers. Direct chats flip IsRead on the
// messages themselves; groups advance the member's LastReadAt.
type ReadStateService struct {
	users      repository.UserRepository
	messages   repository.MessageRepository
	groups     repository.GroupRepository
	summaries  *SummaryService
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
	now        Clock
}

func NewReadStateService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	groups repository.GroupRepository,
	summaries *SummaryService,
	dispatcher *dispatch.Dispatcher,
	logger *zap.Logger,
	clock Clock,
) *ReadStateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadStateService{
		users:      users,
		messages:   messages,
		groups:     groups,
		summaries:  summaries,
		dispatcher: dispatcher,
		logger:     logger,
		now:        clockOrDefault(clock),
	}
}

func (s *ReadStateService) MarkDirectRead(ctx context.Context, viewer user.Identity, otherID uuid.UUID) (conversation.Summary, error) {
	if otherID == viewer.UserID {
		return conversation.Summary{}, relay_errors.Invalid("cannot read a chat with yourself")
	}
	me, err := s.users.GetByID(ctx, viewer.UserID)
	if err != nil {
		return conversation.Summary{}, fmt.Errorf("load viewer: %w", err)
	}
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return conversation.Summary{}, relay_errors.NotFound("user not found")
		}
		return conversation.Summary{}, fmt.Errorf("load counterpart: %w", err)
	}

	changed, err := s.messages.MarkDirectRead(ctx, otherID, viewer.UserID)
	if err != nil {
		return conversation.Summary{}, fmt.Errorf("mark read: %w", err)
	}
	summary, err := s.summaries.Direct(ctx, viewer.UserID, otherID)
	if err != nil {
		return conversation.Summary{}, err
	}

	unread := summary.UnreadCount
	s.dispatcher.SendToUser(viewer.UserID, wsdto.NewEvent(wsdto.EventMessagesRead, wsdto.ReadEvent{
		ReaderID:    viewer.UserID.String(),
		OtherUserID: otherID.String(),
		UnreadCount: &unread,
	}))
	if changed > 0 && policy.CanDeliver(me, other) {
		s.dispatcher.SendToUser(otherID, wsdto.NewEvent(wsdto.EventMessagesRead, wsdto.ReadEvent{
			ReaderID:    viewer.UserID.String(),
			OtherUserID: viewer.UserID.String(),
		}))
	}
	s.logger.Debug("direct chat read",
		zap.String("user_id", viewer.UserID.String()),
		zap.String("other_user_id", otherID.String()),
		zap.Int64("changed", changed),
	)
	return summary, nil
}

// MarkGroupRead advances the read marker to now. LastReadAt never moves
// backwards, so repeating the call is harmless.
func (s *ReadStateService) MarkGroupRead(ctx context.Context, viewer user.Identity, groupID uuid.UUID) (conversation.Summary, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return conversation.Summary{}, relay_errors.NotFound("group not found")
		}
		return conversation.Summary{}, fmt.Errorf("load group: %w", err)
	}
	if !g.IsMember(viewer.UserID) {
		return conversation.Summary{}, relay_errors.Forbidden("not a member of this group")
	}

	now := s.now()
	var zero int64
	if err := s.groups.UpdateMember(ctx, groupID, viewer.UserID, repository.MemberPatch{LastReadAt: &now, UnreadCount: &zero}); err != nil {
		return conversation.Summary{}, fmt.Errorf("advance read marker: %w", err)
	}

	g, err = s.groups.GetByID(ctx, groupID)
	if err != nil {
		return conversation.Summary{}, fmt.Errorf("reload group: %w", err)
	}
	summary, err := s.summaries.Group(ctx, g, viewer.UserID)
	if err != nil {
		return conversation.Summary{}, err
	}

	unread := summary.UnreadCount
	s.dispatcher.SendToUser(viewer.UserID, wsdto.NewEvent(wsdto.EventMessagesRead, wsdto.ReadEvent{
		ReaderID:    viewer.UserID.String(),
		GroupID:     groupID.String(),
		UnreadCount: &unread,
	}))
	return summary, nil
}
