package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-chat/internal/domain/message"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

// HistoryService pages through conversation history as a given viewer sees
// it. Pages are returned oldest first; before is an exclusive cursor.
type HistoryService struct {
	users        repository.UserRepository
	messages     repository.MessageRepository
	groups       repository.GroupRepository
	defaultLimit int
	maxLimit     int
}

func NewHistoryService(users repository.UserRepository, messages repository.MessageRepository, groups repository.GroupRepository, defaultLimit, maxLimit int) *HistoryService {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &HistoryService{
		users:        users,
		messages:     messages,
		groups:       groups,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// PageSize clamps a requested page size to the configured bounds.
func (s *HistoryService) PageSize(n int) int {
	switch {
	case n <= 0:
		return s.defaultLimit
	case n > s.maxLimit:
		return s.maxLimit
	default:
		return n
	}
}

func (s *HistoryService) DirectMessages(ctx context.Context, viewerID, otherID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return nil, relay_errors.NotFound("user not found")
		}
		return nil, fmt.Errorf("load counterpart: %w", err)
	}
	page, err := s.messages.Find(ctx, repository.MessageFilter{
		DirectPair: &repository.Pair{A: viewerID, B: otherID},
		VisibleTo:  valid(viewerID),
		Before:     before,
		Limit:      s.PageSize(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("direct history: %w", err)
	}
	return chronological(page), nil
}

// GroupMessages honours the viewer's membership window: ex-members keep
// reading what was sent while they belonged to the group.
func (s *HistoryService) GroupMessages(ctx context.Context, viewerID, groupID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return nil, relay_errors.NotFound("group not found")
		}
		return nil, fmt.Errorf("load group: %w", err)
	}
	window, ok := g.VisibilityWindow(viewerID)
	if !ok {
		return nil, relay_errors.Forbidden("not a member of this group")
	}

	f := repository.MessageFilter{
		GroupID:   valid(groupID),
		VisibleTo: valid(viewerID),
		NotBefore: window.From,
		Before:    before,
		Limit:     s.PageSize(limit),
	}
	if !window.Open {
		f.NotAfter = window.To
	}
	page, err := s.messages.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("group history: %w", err)
	}
	return chronological(page), nil
}

func chronological(newestFirst []message.Message) []message.Message {
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst
}
