package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SummaryService derives per-viewer conversation summaries from the message
// store. The only state it writes is the group latest-message cache and the
// per-member unread cache.
type SummaryService struct {
	messages repository.MessageRepository
	groups   repository.GroupRepository
	logger   *zap.Logger
}

func NewSummaryService(messages repository.MessageRepository, groups repository.GroupRepository, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{messages: messages, groups: groups, logger: logger}
}

func valid(id uuid.UUID) uuid.NullUUID { return uuid.NullUUID{UUID: id, Valid: true} }

// Direct returns the last message viewerID can see in the chat with otherID
// and the number of unread messages otherID sent to viewerID.
func (s *SummaryService) Direct(ctx context.Context, viewerID, otherID uuid.UUID) (conversation.Summary, error) {
	out := conversation.Summary{Kind: conversation.KindDirect, ViewerID: viewerID, OtherUserID: otherID}

	last, err := s.messages.Find(ctx, repository.MessageFilter{
		DirectPair: &repository.Pair{A: viewerID, B: otherID},
		VisibleTo:  valid(viewerID),
		Limit:      1,
	})
	if err != nil {
		return conversation.Summary{}, fmt.Errorf("last direct message: %w", err)
	}
	if len(last) > 0 {
		out.LastMessage = &last[0]
	}

	unread, err := s.messages.Count(ctx, repository.MessageFilter{
		SenderID:   valid(otherID),
		ReceiverID: valid(viewerID),
		VisibleTo:  valid(viewerID),
		UnreadOnly: true,
	})
	if err != nil {
		return conversation.Summary{}, fmt.Errorf("direct unread count: %w", err)
	}
	out.UnreadCount = unread
	return out, nil
}

// Group returns the summary of g as seen by viewerID. Active members get
// their unread count recomputed and cached; ex-members see the frozen
// history up to their departure with no unread count.
func (s *SummaryService) Group(ctx context.Context, g group.Group, viewerID uuid.UUID) (conversation.Summary, error) {
	window, ok := g.VisibilityWindow(viewerID)
	if !ok {
		return conversation.Summary{}, relay_errors.Forbidden("not a member of this group")
	}
	out := conversation.Summary{Kind: conversation.KindGroup, ViewerID: viewerID, GroupID: g.ID}

	last, err := s.lastGroupMessage(ctx, g, viewerID, window)
	if err != nil {
		return conversation.Summary{}, err
	}
	out.LastMessage = last

	if g.IsMember(viewerID) {
		unread, err := s.RefreshGroupUnread(ctx, g, viewerID)
		if err != nil {
			return conversation.Summary{}, err
		}
		out.UnreadCount = unread
	}
	return out, nil
}

// lastGroupMessage trusts the cached latest message only after checking the
// live message is still visible to the viewer and inside the window.
func (s *SummaryService) lastGroupMessage(ctx context.Context, g group.Group, viewerID uuid.UUID, window group.Window) (*message.Message, error) {
	if g.LatestMessage != nil {
		m, err := s.messages.GetByID(ctx, g.LatestMessage.MessageID)
		switch {
		case err == nil:
			if m.GroupID.Valid && m.GroupID.UUID == g.ID && m.VisibleTo(viewerID) && window.Contains(m.CreatedAt) {
				return &m, nil
			}
		case errors.Is(err, relay_errors.ErrNotFound):
		default:
			return nil, fmt.Errorf("load cached latest message: %w", err)
		}
	}

	f := repository.MessageFilter{
		GroupID:   valid(g.ID),
		VisibleTo: valid(viewerID),
		NotBefore: window.From,
		Limit:     1,
	}
	if !window.Open {
		f.NotAfter = window.To
	}
	found, err := s.messages.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("scan group messages: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// RefreshGroupUnread recomputes the unread count of an active member from
// its read marker and writes it back to the member cache.
func (s *SummaryService) RefreshGroupUnread(ctx context.Context, g group.Group, memberID uuid.UUID) (int64, error) {
	m, ok := g.Member(memberID)
	if !ok {
		return 0, relay_errors.Forbidden("not a member of this group")
	}
	n, err := s.messages.Count(ctx, repository.MessageFilter{
		GroupID:         valid(g.ID),
		ExcludeSenderID: valid(memberID),
		VisibleTo:       valid(memberID),
		After:           m.LastReadAt,
		NotBefore:       m.JoinedAt,
		ExcludeSystem:   true,
	})
	if err != nil {
		return 0, fmt.Errorf("group unread count: %w", err)
	}
	if n != m.UnreadCount {
		if err := s.groups.UpdateMember(ctx, g.ID, memberID, repository.MemberPatch{UnreadCount: &n}); err != nil {
			// the cache is advisory; the recomputed value is still correct
			s.logger.Warn("failed to cache unread count",
				zap.String("group_id", g.ID.String()),
				zap.String("user_id", memberID.String()),
				zap.Error(err),
			)
		}
	}
	return n, nil
}

// OnGroupMessage advances the latest-message cache and returns the fresh
// unread count of every member other than the sender.
func (s *SummaryService) OnGroupMessage(ctx context.Context, g group.Group, m message.Message) map[uuid.UUID]int64 {
	if err := s.groups.SetLatestMessage(ctx, g.ID, group.LatestFrom(m)); err != nil {
		s.logger.Warn("failed to update latest message", zap.String("group_id", g.ID.String()), zap.Error(err))
	}
	unread := make(map[uuid.UUID]int64, len(g.Members))
	for _, member := range g.Members {
		if member.UserID == m.SenderID {
			continue
		}
		n, err := s.RefreshGroupUnread(ctx, g, member.UserID)
		if err != nil {
			s.logger.Warn("failed to recompute unread count",
				zap.String("group_id", g.ID.String()),
				zap.String("user_id", member.UserID.String()),
				zap.Error(err),
			)
			continue
		}
		unread[member.UserID] = n
	}
	return unread
}

// OnGroupMessageChanged refreshes the cache after an edit or tombstone when
// it references m.
func (s *SummaryService) OnGroupMessageChanged(ctx context.Context, g group.Group, m message.Message) {
	if err := s.groups.RefreshLatestMessage(ctx, g.ID, group.LatestFrom(m)); err != nil {
		s.logger.Warn("failed to refresh latest message", zap.String("group_id", g.ID.String()), zap.Error(err))
	}
}

// ListConversations returns every direct chat and group of viewerID, most
// recent activity first. Direct chats with nothing visible are skipped.
func (s *SummaryService) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]conversation.Summary, error) {
	others, err := s.messages.DirectCounterparts(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list direct chats: %w", err)
	}
	out := make([]conversation.Summary, 0, len(others))
	for _, other := range others {
		sum, err := s.Direct(ctx, viewerID, other)
		if err != nil {
			return nil, err
		}
		if sum.LastMessage == nil {
			continue
		}
		out = append(out, sum)
	}

	groups, err := s.groups.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	for _, g := range groups {
		sum, err := s.Group(ctx, g, viewerID)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out, nil
}
