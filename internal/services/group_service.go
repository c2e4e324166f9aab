package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"relay-chat/internal/dispatch"
	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/repository"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxGroupNameLength = 128

type GroupService struct {
	users      repository.UserRepository
	groups     repository.GroupRepository
	messages   *MessageService
	dispatcher *dispatch.Dispatcher
	rooms      *rooms.Tracker
	logger     *zap.Logger
	now        Clock
}

func NewGroupService(
	users repository.UserRepository,
	groups repository.GroupRepository,
	messages *MessageService,
	dispatcher *dispatch.Dispatcher,
	tracker *rooms.Tracker,
	logger *zap.Logger,
	clock Clock,
) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{
		users:      users,
		groups:     groups,
		messages:   messages,
		dispatcher: dispatcher,
		rooms:      tracker,
		logger:     logger,
		now:        clockOrDefault(clock),
	}
}

type CreateGroupInput struct {
	Name        string
	Description string
	Icon        string
	MemberIDs   []uuid.UUID
}

func (s *GroupService) Create(ctx context.Context, creator user.Identity, in CreateGroupInput) (group.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return group.Group{}, relay_errors.Invalid("group name is required")
	}
	if len(name) > maxGroupNameLength {
		return group.Group{}, relay_errors.Invalid("group name is too long")
	}

	ids := dedupe(in.MemberIDs, creator.UserID)
	found, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return group.Group{}, fmt.Errorf("load members: %w", err)
	}
	if len(found) != len(ids) {
		return group.Group{}, relay_errors.NotFound("one or more members do not exist")
	}

	now := s.now()
	g := group.Group{
		ID:          uuid.New(),
		Name:        name,
		Description: in.Description,
		Icon:        in.Icon,
		CreatedBy:   creator.UserID,
		IsActive:    true,
		Members: []group.Member{
			{UserID: creator.UserID, Role: group.RoleAdmin, JoinedAt: now, LastReadAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, id := range ids {
		g.Members = append(g.Members, group.Member{UserID: id, Role: group.RoleMember, JoinedAt: now, LastReadAt: now})
	}
	if err := g.Validate(); err != nil {
		return group.Group{}, err
	}
	if err := s.groups.Create(ctx, &g); err != nil {
		return group.Group{}, fmt.Errorf("create group: %w", err)
	}

	if _, err := s.messages.PostSystemMessage(ctx, g, creator.UserID, creator.Username+" created the group"); err != nil {
		s.logger.Warn("group created without system message", zap.String("group_id", g.ID.String()), zap.Error(err))
	}
	evt := wsdto.NewEvent(wsdto.EventGroupCreated, wsdto.GroupEvent{Group: wsdto.FromGroup(g)})
	for _, id := range g.MemberIDs() {
		s.dispatcher.SendToUser(id, evt)
	}
	return s.reload(ctx, g.ID)
}

// Get returns g to current and former members.
func (s *GroupService) Get(ctx context.Context, viewerID, groupID uuid.UUID) (group.Group, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	if _, ok := g.VisibilityWindow(viewerID); !ok {
		return group.Group{}, relay_errors.Forbidden("not a member of this group")
	}
	return g, nil
}

// EnsureActiveMember gates joining the group room.
func (s *GroupService) EnsureActiveMember(ctx context.Context, userID, groupID uuid.UUID) (group.Group, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	if !g.IsActive || !g.IsMember(userID) {
		return group.Group{}, relay_errors.Forbidden("not a member of this group")
	}
	return g, nil
}

func (s *GroupService) AddMembers(ctx context.Context, admin user.Identity, groupID uuid.UUID, memberIDs []uuid.UUID) (group.Group, error) {
	g, err := s.requireAdmin(ctx, admin.UserID, groupID)
	if err != nil {
		return group.Group{}, err
	}

	var ids []uuid.UUID
	for _, id := range dedupe(memberIDs, admin.UserID) {
		if !g.IsMember(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return g, nil
	}
	added, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return group.Group{}, fmt.Errorf("load members: %w", err)
	}
	if len(added) != len(ids) {
		return group.Group{}, relay_errors.NotFound("one or more members do not exist")
	}

	now := s.now()
	names := make([]string, 0, len(added))
	for _, u := range added {
		m := group.Member{UserID: u.ID, Role: group.RoleMember, JoinedAt: now, LastReadAt: now}
		if err := s.groups.AddMember(ctx, groupID, m); err != nil && !errors.Is(err, relay_errors.ErrAlreadyExists) {
			return group.Group{}, fmt.Errorf("add member: %w", err)
		}
		names = append(names, u.Username)
	}

	g, err = s.reload(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	text := fmt.Sprintf("%s added %s", admin.Username, strings.Join(names, ", "))
	if _, err := s.messages.PostSystemMessage(ctx, g, admin.UserID, text); err != nil {
		s.logger.Warn("members added without system message", zap.String("group_id", groupID.String()), zap.Error(err))
	}
	evt := wsdto.NewEvent(wsdto.EventGroupCreated, wsdto.GroupEvent{Group: wsdto.FromGroup(g)})
	for _, u := range added {
		s.dispatcher.SendToUser(u.ID, evt)
	}
	return g, nil
}

// RemoveMember moves target to the removed log. The creator cannot be
// removed. The target's connections leave the group room before anything is
// broadcast.
func (s *GroupService) RemoveMember(ctx context.Context, admin user.Identity, groupID, targetID uuid.UUID) (group.Group, error) {
	g, err := s.requireAdmin(ctx, admin.UserID, groupID)
	if err != nil {
		return group.Group{}, err
	}
	if targetID == g.CreatedBy {
		return group.Group{}, relay_errors.Forbidden("the group creator cannot be removed")
	}
	if targetID == admin.UserID {
		return group.Group{}, relay_errors.Invalid("use leave to exit a group")
	}
	if !g.IsMember(targetID) {
		return group.Group{}, relay_errors.NotFound("user is not a member of this group")
	}

	dep := group.Departure{UserID: targetID, At: s.now(), By: admin.UserID}
	if err := s.groups.RemoveMember(ctx, groupID, group.DepartureRemoved, dep); err != nil {
		return group.Group{}, fmt.Errorf("remove member: %w", err)
	}
	s.rooms.Evict(targetID, rooms.GroupRoom(groupID))

	g, err = s.reload(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	text := fmt.Sprintf("%s removed %s", admin.Username, s.username(ctx, targetID))
	if _, err := s.messages.PostSystemMessage(ctx, g, admin.UserID, text); err != nil {
		s.logger.Warn("member removed without system message", zap.String("group_id", groupID.String()), zap.Error(err))
	}

	s.dispatcher.SendToUser(targetID, wsdto.NewEvent(wsdto.EventMemberRemovedFromGroup, wsdto.MemberEvent{
		GroupID:  groupID.String(),
		UserID:   targetID.String(),
		ByUserID: admin.UserID.String(),
	}))
	s.notifyMembers(g, wsdto.EventGroupMemberRemoved, targetID, admin.UserID)
	return g, nil
}

// Leave moves the caller to the left log. The creator cannot leave.
func (s *GroupService) Leave(ctx context.Context, member user.Identity, groupID uuid.UUID) error {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.IsMember(member.UserID) {
		return relay_errors.Forbidden("not a member of this group")
	}
	if member.UserID == g.CreatedBy {
		return relay_errors.Forbidden("the group creator cannot leave")
	}

	dep := group.Departure{UserID: member.UserID, At: s.now(), By: member.UserID}
	if err := s.groups.RemoveMember(ctx, groupID, group.DepartureLeft, dep); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	s.rooms.Evict(member.UserID, rooms.GroupRoom(groupID))

	g, err = s.reload(ctx, groupID)
	if err != nil {
		return err
	}
	if _, err := s.messages.PostSystemMessage(ctx, g, member.UserID, member.Username+" left the group"); err != nil {
		s.logger.Warn("member left without system message", zap.String("group_id", groupID.String()), zap.Error(err))
	}

	s.dispatcher.SendToUser(member.UserID, wsdto.NewEvent(wsdto.EventGroupMemberLeft, wsdto.MemberEvent{
		GroupID: groupID.String(),
		UserID:  member.UserID.String(),
	}))
	s.notifyMembers(g, wsdto.EventGroupMemberLeft, member.UserID, uuid.Nil)
	return nil
}

func (s *GroupService) notifyMembers(g group.Group, eventType string, subject, by uuid.UUID) {
	dto := wsdto.FromGroup(g)
	payload := wsdto.MemberEvent{GroupID: g.ID.String(), UserID: subject.String(), Group: &dto}
	if by != uuid.Nil {
		payload.ByUserID = by.String()
	}
	evt := wsdto.NewEvent(eventType, payload)
	for _, id := range g.MemberIDs() {
		s.dispatcher.SendToUser(id, evt)
	}
}

func (s *GroupService) requireAdmin(ctx context.Context, userID, groupID uuid.UUID) (group.Group, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	if !g.IsActive {
		return group.Group{}, relay_errors.NotFound("group not found")
	}
	if !g.IsAdmin(userID) {
		return group.Group{}, relay_errors.Forbidden("only group admins can manage members")
	}
	return g, nil
}

func (s *GroupService) load(ctx context.Context, groupID uuid.UUID) (group.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return group.Group{}, relay_errors.NotFound("group not found")
		}
		return group.Group{}, fmt.Errorf("load group: %w", err)
	}
	return g, nil
}

func (s *GroupService) reload(ctx context.Context, groupID uuid.UUID) (group.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return group.Group{}, fmt.Errorf("reload group: %w", err)
	}
	return g, nil
}

func (s *GroupService) username(ctx context.Context, id uuid.UUID) string {
	u, err := s.users.GetByID(ctx, id)
	if err != nil || u.Username == "" {
		return "a member"
	}
	return u.Username
}

// dedupe drops duplicates and skip.
func dedupe(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{skip: {}}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
