package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-chat/internal/dispatch"
	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/metrics"
	"relay-chat/internal/policy"
	"relay-chat/internal/repository"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MediaVerifier confirms that an uploaded image or video key exists.
type MediaVerifier interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// SendLimiter throttles message creation per user.
type SendLimiter interface {
	AllowMessage(ctx context.Context, userID uuid.UUID) (bool, error)
}

type MessageServiceDeps struct {
	Users      repository.UserRepository
	Messages   repository.MessageRepository
	Groups     repository.GroupRepository
	Summaries  *SummaryService
	Dispatcher *dispatch.Dispatcher
	Rooms      *rooms.Tracker
	Media      MediaVerifier
	Limiter    SendLimiter
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	EditWindow time.Duration
	Clock      Clock
}

// MessageService applies message mutations, refreshes the affected
// summaries and hands the result to the dispatcher.
type MessageService struct {
	users      repository.UserRepository
	messages   repository.MessageRepository
	groups     repository.GroupRepository
	summaries  *SummaryService
	dispatcher *dispatch.Dispatcher
	rooms      *rooms.Tracker
	media      MediaVerifier
	limiter    SendLimiter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	window     time.Duration
	now        Clock
}

func NewMessageService(d MessageServiceDeps) *MessageService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.EditWindow <= 0 {
		d.EditWindow = message.DefaultModificationWindow
	}
	return &MessageService{
		users:      d.Users,
		messages:   d.Messages,
		groups:     d.Groups,
		summaries:  d.Summaries,
		dispatcher: d.Dispatcher,
		rooms:      d.Rooms,
		media:      d.Media,
		limiter:    d.Limiter,
		metrics:    d.Metrics,
		logger:     d.Logger,
		window:     d.EditWindow,
		now:        clockOrDefault(d.Clock),
	}
}

type SendDirectInput struct {
	ReceiverID      uuid.UUID
	Type            message.Type
	Text            string
	MediaRef        string
	ClientMessageID string
}

type SendGroupInput struct {
	GroupID         uuid.UUID
	Type            message.Type
	Text            string
	MediaRef        string
	ClientMessageID string
}

func (s *MessageService) observe(op string, start time.Time, err error) {
	result := "OK"
	if err != nil {
		result = relay_errors.Code(err)
	}
	s.metrics.RecordMutation(op, result, time.Since(start))
}

func (s *MessageService) SendDirect(ctx context.Context, actor user.Identity, in SendDirectInput) (msg message.Message, err error) {
	defer func(start time.Time) { s.observe("send_direct", start, err) }(time.Now())

	if err := s.checkContent(ctx, actor.UserID, in.Type, in.Text, in.MediaRef); err != nil {
		return message.Message{}, err
	}
	if in.ReceiverID == actor.UserID {
		return message.Message{}, relay_errors.Invalid("cannot message yourself")
	}

	sender, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return message.Message{}, fmt.Errorf("load sender: %w", err)
	}
	receiver, err := s.users.GetByID(ctx, in.ReceiverID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return message.Message{}, relay_errors.NotFound("receiver not found")
		}
		return message.Message{}, fmt.Errorf("load receiver: %w", err)
	}

	deliverable := policy.CanDeliver(sender, receiver)
	// both parties looking at the same chat: the message is read on arrival
	readOnSend := deliverable && s.rooms.IsUserIn(receiver.ID, rooms.DirectRoom(sender.ID, receiver.ID))

	msg = message.Message{
		ID:         uuid.New(),
		SenderID:   sender.ID,
		ReceiverID: valid(receiver.ID),
		Type:       in.Type,
		Text:       in.Text,
		MediaRef:   in.MediaRef,
		CreatedAt:  s.now(),
		IsRead:     readOnSend,
		Withheld:   !deliverable,
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return message.Message{}, fmt.Errorf("persist message: %w", err)
	}

	res := dispatch.Result{
		Op:              dispatch.OpCreated,
		Message:         msg,
		Actor:           sender,
		Counterpart:     receiver,
		ReadOnSend:      readOnSend,
		ClientMessageID: in.ClientMessageID,
	}
	s.attachDirectSummaries(ctx, &res)
	s.dispatcher.Dispatch(res)
	return msg, nil
}

func (s *MessageService) SendGroup(ctx context.Context, actor user.Identity, in SendGroupInput) (msg message.Message, err error) {
	defer func(start time.Time) { s.observe("send_group", start, err) }(time.Now())

	if err := s.checkContent(ctx, actor.UserID, in.Type, in.Text, in.MediaRef); err != nil {
		return message.Message{}, err
	}
	g, err := s.activeGroup(ctx, in.GroupID)
	if err != nil {
		return message.Message{}, err
	}
	if !g.IsMember(actor.UserID) {
		return message.Message{}, relay_errors.Forbidden("not a member of this group")
	}

	msg = message.Message{
		ID:        uuid.New(),
		SenderID:  actor.UserID,
		GroupID:   valid(g.ID),
		Type:      in.Type,
		Text:      in.Text,
		MediaRef:  in.MediaRef,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return message.Message{}, fmt.Errorf("persist message: %w", err)
	}

	s.fanOutGroupCreate(ctx, g, msg, in.ClientMessageID)
	return msg, nil
}

// PostSystemMessage records a membership change in the group history and
// pushes it to the group room. System messages skip block filtering.
func (s *MessageService) PostSystemMessage(ctx context.Context, g group.Group, actorID uuid.UUID, text string) (message.Message, error) {
	if err := message.ValidateContent(message.TypeSystem, text, ""); err != nil {
		return message.Message{}, err
	}
	msg := message.Message{
		ID:        uuid.New(),
		SenderID:  actorID,
		GroupID:   valid(g.ID),
		Type:      message.TypeSystem,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return message.Message{}, fmt.Errorf("persist system message: %w", err)
	}
	s.fanOutGroupCreate(ctx, g, msg, "")
	return msg, nil
}

func (s *MessageService) fanOutGroupCreate(ctx context.Context, g group.Group, msg message.Message, clientMessageID string) {
	unread := s.summaries.OnGroupMessage(ctx, g, msg)
	actor, members := s.groupAudience(ctx, g, msg.SenderID)

	res := dispatch.Result{
		Op:              dispatch.OpCreated,
		Message:         msg,
		Actor:           actor,
		Group:           g,
		Members:         members,
		MemberUnread:    unread,
		ClientMessageID: clientMessageID,
	}
	if m, ok := g.Member(msg.SenderID); ok {
		res.ActorSummary = &conversation.Summary{
			Kind:        conversation.KindGroup,
			ViewerID:    msg.SenderID,
			GroupID:     g.ID,
			LastMessage: &msg,
			UnreadCount: m.UnreadCount,
		}
	}
	s.dispatcher.Dispatch(res)
}

func (s *MessageService) Edit(ctx context.Context, actor user.Identity, messageID uuid.UUID, text string) (msg message.Message, err error) {
	defer func(start time.Time) { s.observe("edit", start, err) }(time.Now())

	if err := message.ValidateContent(message.TypeText, text, ""); err != nil {
		return message.Message{}, err
	}
	msg, err = s.messages.Update(ctx, messageID, func(m *message.Message) error {
		return m.Edit(actor.UserID, text, s.now(), s.window)
	})
	if err != nil {
		return message.Message{}, wrapMutation("edit message", err)
	}
	s.fanOutChange(ctx, dispatch.OpEdited, actor, msg)
	return msg, nil
}

func (s *MessageService) DeleteForEveryone(ctx context.Context, actor user.Identity, messageID uuid.UUID) (msg message.Message, err error) {
	defer func(start time.Time) { s.observe("delete_for_everyone", start, err) }(time.Now())

	var changed bool
	msg, err = s.messages.Update(ctx, messageID, func(m *message.Message) error {
		var err error
		changed, err = m.DeleteForEveryone(actor.UserID, s.now(), s.window)
		return err
	})
	if err != nil {
		return message.Message{}, wrapMutation("delete message", err)
	}
	if !changed {
		// already a tombstone: confirm to the caller without a new fan-out
		s.dispatcher.SendToUser(actor.UserID, wsdto.NewEvent(wsdto.EventMessageDeletedForEveryone, wsdto.MessageEvent{
			Message: wsdto.FromMessage(msg),
		}))
		return msg, nil
	}
	s.fanOutChange(ctx, dispatch.OpDeletedForEveryone, actor, msg)
	return msg, nil
}

func (s *MessageService) DeleteForMe(ctx context.Context, actor user.Identity, messageID uuid.UUID) (msg message.Message, err error) {
	defer func(start time.Time) { s.observe("delete_for_me", start, err) }(time.Now())

	current, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, wrapMutation("load message", err)
	}

	var g group.Group
	activeMember := false
	if current.IsGroup() {
		g, err = s.groups.GetByID(ctx, current.GroupID.UUID)
		if err != nil {
			return message.Message{}, wrapMutation("load group", err)
		}
		activeMember = g.IsMember(actor.UserID)
	}

	msg, err = s.messages.Update(ctx, messageID, func(m *message.Message) error {
		_, err := m.DeleteForMe(actor.UserID, activeMember)
		return err
	})
	if err != nil {
		return message.Message{}, wrapMutation("hide message", err)
	}

	res := dispatch.Result{Op: dispatch.OpDeletedForMe, Message: msg, Actor: user.User{ID: actor.UserID}}
	var summary conversation.Summary
	if msg.IsGroup() {
		summary, err = s.summaries.Group(ctx, g, actor.UserID)
	} else {
		summary, err = s.summaries.Direct(ctx, actor.UserID, msg.Counterpart(actor.UserID))
	}
	if err != nil {
		s.logger.Warn("summary after delete-for-me failed", zap.String("message_id", msg.ID.String()), zap.Error(err))
	} else {
		res.ActorSummary = &summary
	}
	s.dispatcher.Dispatch(res)
	return msg, nil
}

// fanOutChange pushes an edit or tombstone to everyone who may see it.
func (s *MessageService) fanOutChange(ctx context.Context, op dispatch.Op, actor user.Identity, msg message.Message) {
	if msg.IsGroup() {
		g, err := s.groups.GetByID(ctx, msg.GroupID.UUID)
		if err != nil {
			s.logger.Error("load group for fan-out", zap.String("group_id", msg.GroupID.UUID.String()), zap.Error(err))
			return
		}
		s.summaries.OnGroupMessageChanged(ctx, g, msg)
		sender, members := s.groupAudience(ctx, g, actor.UserID)
		s.dispatcher.Dispatch(dispatch.Result{Op: op, Message: msg, Actor: sender, Group: g, Members: members})
		return
	}

	sender, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		s.logger.Error("load sender for fan-out", zap.String("user_id", actor.UserID.String()), zap.Error(err))
		return
	}
	other, err := s.users.GetByID(ctx, msg.Counterpart(actor.UserID))
	if err != nil {
		s.logger.Error("load counterpart for fan-out", zap.String("message_id", msg.ID.String()), zap.Error(err))
		return
	}
	res := dispatch.Result{Op: op, Message: msg, Actor: sender, Counterpart: other}
	s.attachDirectSummaries(ctx, &res)
	s.dispatcher.Dispatch(res)
}

func (s *MessageService) attachDirectSummaries(ctx context.Context, res *dispatch.Result) {
	mine, err := s.summaries.Direct(ctx, res.Actor.ID, res.Counterpart.ID)
	if err != nil {
		s.logger.Warn("sender summary failed", zap.String("message_id", res.Message.ID.String()), zap.Error(err))
	} else {
		res.ActorSummary = &mine
	}
	if res.Message.Withheld || !policy.CanDeliver(res.Actor, res.Counterpart) {
		return
	}
	theirs, err := s.summaries.Direct(ctx, res.Counterpart.ID, res.Actor.ID)
	if err != nil {
		s.logger.Warn("receiver summary failed", zap.String("message_id", res.Message.ID.String()), zap.Error(err))
		return
	}
	res.CounterpartSummary = &theirs
}

// groupAudience loads the actor and the active members of g. Unknown users
// degrade to bare ids so delivery still happens.
func (s *MessageService) groupAudience(ctx context.Context, g group.Group, actorID uuid.UUID) (user.User, []user.User) {
	members, err := s.users.GetMany(ctx, append(g.MemberIDs(), actorID))
	if err != nil {
		s.logger.Warn("load group members failed", zap.String("group_id", g.ID.String()), zap.Error(err))
		members = nil
	}
	actor := user.User{ID: actorID}
	byID := make(map[uuid.UUID]user.User, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	if u, ok := byID[actorID]; ok {
		actor = u
	}
	out := make([]user.User, 0, len(g.Members))
	for _, id := range g.MemberIDs() {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		} else {
			out = append(out, user.User{ID: id})
		}
	}
	return actor, out
}

func (s *MessageService) checkContent(ctx context.Context, userID uuid.UUID, t message.Type, text, mediaRef string) error {
	if t == message.TypeSystem {
		return relay_errors.Invalid("system messages are generated by the server")
	}
	if err := message.ValidateContent(t, text, mediaRef); err != nil {
		return err
	}
	if s.limiter != nil {
		allowed, err := s.limiter.AllowMessage(ctx, userID)
		switch {
		case err != nil:
			s.logger.Warn("rate limiter unavailable, allowing message", zap.Error(err))
		case !allowed:
			s.metrics.RecordRateLimited("messages")
			return relay_errors.New(relay_errors.ErrRateLimited, "too many messages, slow down")
		}
	}
	if (t == message.TypeImage || t == message.TypeVideo) && s.media != nil {
		ok, err := s.media.Exists(ctx, mediaRef)
		if err != nil {
			return fmt.Errorf("verify media: %w", err)
		}
		if !ok {
			return relay_errors.Invalid(string(t) + " not found in media storage")
		}
	}
	return nil
}

func (s *MessageService) activeGroup(ctx context.Context, groupID uuid.UUID) (group.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return group.Group{}, relay_errors.NotFound("group not found")
		}
		return group.Group{}, fmt.Errorf("load group: %w", err)
	}
	if !g.IsActive {
		return group.Group{}, relay_errors.NotFound("group not found")
	}
	return g, nil
}

// wrapMutation keeps client-facing errors as they are and adds context to
// storage failures.
func wrapMutation(op string, err error) error {
	if errors.Is(err, relay_errors.ErrNotFound) {
		return relay_errors.NotFound("message not found")
	}
	if relay_errors.IsKnown(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
