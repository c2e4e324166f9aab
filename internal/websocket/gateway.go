package websocket

import (
	"context"
	"encoding/json"
	"time"

	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/metrics"
	"relay-chat/internal/presence"
	"relay-chat/internal/rooms"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway turns inbound frames into service calls. Failures are reported to
// the originating connection only.
type Gateway struct {
	messages *services.MessageService
	reads    *services.ReadStateService
	groups   *services.GroupService
	users    *services.UserService
	rooms    *rooms.Tracker
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewGateway(
	messages *services.MessageService,
	reads *services.ReadStateService,
	groups *services.GroupService,
	users *services.UserService,
	tracker *rooms.Tracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		messages: messages,
		reads:    reads,
		groups:   groups,
		users:    users,
		rooms:    tracker,
		metrics:  m,
		logger:   logger,
	}
}

type handlerFunc func(ctx context.Context, g *Gateway, c presence.Conn, id user.Identity, payload json.RawMessage) error

var routes = map[string]handlerFunc{
	wsdto.EventSendMessage:              handleSendMessage,
	wsdto.EventSendGroupMessage:         handleSendGroupMessage,
	wsdto.EventEditMessage:              handleEditMessage,
	wsdto.EventDeleteMessageForMe:       handleDeleteForMe,
	wsdto.EventDeleteMessageForEveryone: handleDeleteForEveryone,
	wsdto.EventJoinChat:                 handleJoinChat,
	wsdto.EventLeaveChat:                handleLeaveChat,
	wsdto.EventJoinGroupChat:            handleJoinGroupChat,
	wsdto.EventLeaveGroupChat:           handleLeaveGroupChat,
	wsdto.EventMarkMessagesAsRead:       handleMarkRead,
	wsdto.EventMarkGroupMessagesAsRead:  handleMarkGroupRead,
}

// Handle runs one inbound event to completion.
func (g *Gateway) Handle(ctx context.Context, c presence.Conn, id user.Identity, in wsdto.Inbound) {
	start := time.Now()
	ctx = services.WithIdentity(ctx, id)

	route, ok := routes[in.Type]
	if !ok {
		g.metrics.RecordInbound("unknown", "INVALID_REQUEST")
		g.fail(c, in, relay_errors.Invalid("unknown event type"))
		return
	}

	err := route(ctx, g, c, id, in.Payload)
	outcome := "OK"
	if err != nil {
		outcome = relay_errors.Code(err)
		g.fail(c, in, err)
	}
	g.metrics.RecordInbound(in.Type, outcome)
	g.logger.Debug("inbound event handled",
		zap.String("event", in.Type),
		zap.String("user_id", id.UserID.String()),
		zap.String("client_id", c.ID()),
		zap.String("outcome", outcome),
		zap.Duration("took", time.Since(start)),
	)
}

func (g *Gateway) fail(c presence.Conn, in wsdto.Inbound, err error) {
	if !relay_errors.IsKnown(err) {
		g.logger.Error("inbound event failed",
			zap.String("event", in.Type),
			zap.String("user_id", c.UserID().String()),
			zap.String("client_id", c.ID()),
			zap.Error(err),
		)
	}
	evt := wsdto.NewEvent(wsdto.EventError, wsdto.ErrorEvent{
		Code:    relay_errors.Code(err),
		Message: relay_errors.PublicMessage(err),
		Event:   in.Type,
	})
	evt.RequestID = in.RequestID
	c.Send(evt)
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, relay_errors.Invalid("payload is required")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, relay_errors.Invalid("malformed payload")
	}
	return v, nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, relay_errors.Invalid(field + " must be a valid id")
	}
	return id, nil
}

// content picks the media ref that matches the declared type. A ref of the
// other kind, or any ref on a text message, is rejected.
func content(kind, image, video string) (message.Type, string, error) {
	t, err := message.ParseType(kind)
	if err != nil {
		return "", "", err
	}
	switch t {
	case message.TypeImage:
		if video != "" {
			return "", "", relay_errors.Invalid("image messages cannot carry a video")
		}
		return t, image, nil
	case message.TypeVideo:
		if image != "" {
			return "", "", relay_errors.Invalid("video messages cannot carry an image")
		}
		return t, video, nil
	}
	if image != "" || video != "" {
		return "", "", relay_errors.Invalid(string(t) + " messages cannot carry media")
	}
	return t, "", nil
}

func handleSendMessage(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.SendMessageRequest](payload)
	if err != nil {
		return err
	}
	receiverID, err := parseID(req.ReceiverID, "receiverId")
	if err != nil {
		return err
	}
	t, media, err := content(req.MessageType, req.Image, req.Video)
	if err != nil {
		return err
	}
	_, err = g.messages.SendDirect(ctx, id, services.SendDirectInput{
		ReceiverID:      receiverID,
		Type:            t,
		Text:            req.Text,
		MediaRef:        media,
		ClientMessageID: req.ClientMessageID,
	})
	return err
}

func handleSendGroupMessage(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.SendGroupMessageRequest](payload)
	if err != nil {
		return err
	}
	groupID, err := parseID(req.GroupID, "groupId")
	if err != nil {
		return err
	}
	t, media, err := content(req.MessageType, req.Image, req.Video)
	if err != nil {
		return err
	}
	_, err = g.messages.SendGroup(ctx, id, services.SendGroupInput{
		GroupID:         groupID,
		Type:            t,
		Text:            req.Text,
		MediaRef:        media,
		ClientMessageID: req.ClientMessageID,
	})
	return err
}

func handleEditMessage(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.EditMessageRequest](payload)
	if err != nil {
		return err
	}
	messageID, err := parseID(req.MessageID, "messageId")
	if err != nil {
		return err
	}
	_, err = g.messages.Edit(ctx, id, messageID, req.Text)
	return err
}

func handleDeleteForMe(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.MessageRefRequest](payload)
	if err != nil {
		return err
	}
	messageID, err := parseID(req.MessageID, "messageId")
	if err != nil {
		return err
	}
	_, err = g.messages.DeleteForMe(ctx, id, messageID)
	return err
}

func handleDeleteForEveryone(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.MessageRefRequest](payload)
	if err != nil {
		return err
	}
	messageID, err := parseID(req.MessageID, "messageId")
	if err != nil {
		return err
	}
	_, err = g.messages.DeleteForEveryone(ctx, id, messageID)
	return err
}

func handleJoinChat(ctx context.Context, g *Gateway, c presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.ChatRequest](payload)
	if err != nil {
		return err
	}
	otherID, err := parseID(req.UserID, "userId")
	if err != nil {
		return err
	}
	if otherID == id.UserID {
		return relay_errors.Invalid("cannot open a chat with yourself")
	}
	if _, err := g.users.GetByID(ctx, otherID); err != nil {
		return err
	}
	g.rooms.Join(c, rooms.DirectRoom(id.UserID, otherID))
	return nil
}

func handleLeaveChat(_ context.Context, g *Gateway, c presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.ChatRequest](payload)
	if err != nil {
		return err
	}
	otherID, err := parseID(req.UserID, "userId")
	if err != nil {
		return err
	}
	g.rooms.Leave(c, rooms.DirectRoom(id.UserID, otherID))
	return nil
}

func handleJoinGroupChat(ctx context.Context, g *Gateway, c presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.GroupRequest](payload)
	if err != nil {
		return err
	}
	groupID, err := parseID(req.GroupID, "groupId")
	if err != nil {
		return err
	}
	if _, err := g.groups.EnsureActiveMember(ctx, id.UserID, groupID); err != nil {
		return err
	}
	g.rooms.Join(c, rooms.GroupRoom(groupID))
	return nil
}

func handleLeaveGroupChat(_ context.Context, g *Gateway, c presence.Conn, _ user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.GroupRequest](payload)
	if err != nil {
		return err
	}
	groupID, err := parseID(req.GroupID, "groupId")
	if err != nil {
		return err
	}
	g.rooms.Leave(c, rooms.GroupRoom(groupID))
	return nil
}

func handleMarkRead(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.ChatRequest](payload)
	if err != nil {
		return err
	}
	otherID, err := parseID(req.UserID, "userId")
	if err != nil {
		return err
	}
	_, err = g.reads.MarkDirectRead(ctx, id, otherID)
	return err
}

func handleMarkGroupRead(ctx context.Context, g *Gateway, _ presence.Conn, id user.Identity, payload json.RawMessage) error {
	req, err := decode[wsdto.GroupRequest](payload)
	if err != nil {
		return err
	}
	groupID, err := parseID(req.GroupID, "groupId")
	if err != nil {
		return err
	}
	_, err = g.reads.MarkGroupRead(ctx, id, groupID)
	return err
}
