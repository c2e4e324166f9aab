package dispatch

import (
	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/metrics"
	"relay-chat/internal/policy"
	"relay-chat/internal/presence"
	"relay-chat/internal/rooms"
	"relay-chat/internal/transport/wsdto"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Op string

const (
	OpCreated            Op = "created"
	OpEdited             Op = "edited"
	OpDeletedForMe       Op = "deleted_for_me"
	OpDeletedForEveryone Op = "deleted_for_everyone"
)

// Result describes one applied message mutation and everything the
// dispatcher needs to pick its targets.
type Result struct {
	Op      Op
	Message message.Message
	Actor   user.User

	// Direct messages
	Counterpart        user.User
	CounterpartSummary *conversation.Summary
	ReadOnSend         bool

	// Group messages. Members holds the active members at mutation time.
	Group        group.Group
	Members      []user.User
	MemberUnread map[uuid.UUID]int64

	ActorSummary    *conversation.Summary
	ClientMessageID string
}

// Dispatcher delivers events to live connections. Delivery is best effort:
// offline targets are skipped and nothing is retried. The actor's own
// connection is always served first.
type Dispatcher struct {
	registry *presence.Registry
	rooms    *rooms.Tracker
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func New(registry *presence.Registry, tracker *rooms.Tracker, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, rooms: tracker, metrics: m, logger: logger}
}

func (d *Dispatcher) Dispatch(r Result) {
	if r.Message.IsGroup() {
		d.dispatchGroup(r)
		return
	}
	d.dispatchDirect(r)
}

func (d *Dispatcher) dispatchDirect(r Result) {
	msg := wsdto.FromMessage(r.Message)
	actorID := r.Actor.ID
	otherID := r.Counterpart.ID

	var eventType string
	switch r.Op {
	case OpDeletedForMe:
		d.SendToUser(actorID, wsdto.NewEvent(wsdto.EventMessageDeletedForMe, wsdto.DeletedForMeEvent{
			MessageID: r.Message.ID.String(),
			Summary:   summaryDTO(r.ActorSummary),
		}))
		return
	case OpCreated:
		d.SendToUser(actorID, wsdto.NewEvent(wsdto.EventMessageSent, wsdto.MessageEvent{
			Message:         msg,
			Summary:         summaryDTO(r.ActorSummary),
			ClientMessageID: r.ClientMessageID,
		}))
		eventType = wsdto.EventReceiveMessage
	case OpEdited:
		eventType = wsdto.EventMessageEdited
	case OpDeletedForEveryone:
		eventType = wsdto.EventMessageDeletedForEveryone
	default:
		d.logger.Warn("unknown dispatch op", zap.String("op", string(r.Op)))
		return
	}

	if r.Op != OpCreated {
		d.SendToUser(actorID, wsdto.NewEvent(eventType, wsdto.MessageEvent{
			Message: msg,
			Summary: summaryDTO(r.ActorSummary),
		}))
	}

	if r.Message.Withheld || !policy.CanDeliver(r.Actor, r.Counterpart) {
		d.metrics.RecordSuppressed()
	} else {
		d.SendToUser(otherID, wsdto.NewEvent(eventType, wsdto.MessageEvent{
			Message: msg,
			Summary: summaryDTO(r.CounterpartSummary),
		}))
	}

	if r.Op == OpCreated && r.ReadOnSend {
		d.SendToUser(actorID, wsdto.NewEvent(wsdto.EventMessagesRead, wsdto.ReadEvent{
			ReaderID:    otherID.String(),
			OtherUserID: otherID.String(),
		}))
	}
}

func (d *Dispatcher) dispatchGroup(r Result) {
	msg := wsdto.FromMessage(r.Message)
	actorID := r.Actor.ID

	var eventType string
	switch r.Op {
	case OpDeletedForMe:
		d.SendToUser(actorID, wsdto.NewEvent(wsdto.EventMessageDeletedForMe, wsdto.DeletedForMeEvent{
			MessageID: r.Message.ID.String(),
			Summary:   summaryDTO(r.ActorSummary),
		}))
		return
	case OpCreated:
		eventType = wsdto.EventNewMessage
	case OpEdited:
		eventType = wsdto.EventMessageEdited
	case OpDeletedForEveryone:
		eventType = wsdto.EventMessageDeletedForEveryone
	default:
		d.logger.Warn("unknown dispatch op", zap.String("op", string(r.Op)))
		return
	}

	if r.Message.Type != message.TypeSystem || r.Group.IsMember(actorID) {
		d.SendToUser(actorID, wsdto.NewEvent(eventType, wsdto.MessageEvent{
			Message:         msg,
			Summary:         summaryDTO(r.ActorSummary),
			ClientMessageID: r.ClientMessageID,
		}))
	}

	allowed := func(uuid.UUID) bool { return true }
	if r.Message.Type != message.TypeSystem {
		audience := policy.CanDeliverToGroup(r.Actor, r.Members)
		allowed = audience.Allows
	}

	d.BroadcastGroup(r.Group, actorID, func(userID uuid.UUID) (wsdto.Event, bool) {
		if !allowed(userID) {
			d.metrics.RecordSuppressed()
			return wsdto.Event{}, false
		}
		payload := wsdto.MessageEvent{Message: msg}
		if r.Op == OpCreated {
			payload.Summary = summaryDTO(&conversation.Summary{
				Kind:        conversation.KindGroup,
				ViewerID:    userID,
				GroupID:     r.Group.ID,
				LastMessage: &r.Message,
				UnreadCount: r.MemberUnread[userID],
			})
		}
		return wsdto.NewEvent(eventType, payload), true
	})
}

// BroadcastGroup offers an event to every connection joined to the group's
// room whose identity is still an active member of g. build may decline a
// recipient. Connections of skip are ignored. It returns the number of
// queued events.
func (d *Dispatcher) BroadcastGroup(g group.Group, skip uuid.UUID, build func(userID uuid.UUID) (wsdto.Event, bool)) int {
	sent := 0
	for _, c := range d.rooms.Connections(rooms.GroupRoom(g.ID)) {
		userID := c.UserID()
		if userID == skip {
			continue
		}
		if !g.IsMember(userID) {
			// stale room state after removal or departure
			continue
		}
		evt, ok := build(userID)
		if !ok {
			continue
		}
		if d.SendToConn(c, evt) {
			sent++
		}
	}
	return sent
}

// SendToUser queues evt on the active connection of userID.
func (d *Dispatcher) SendToUser(userID uuid.UUID, evt wsdto.Event) bool {
	c, ok := d.registry.Get(userID)
	if !ok {
		return false
	}
	return d.SendToConn(c, evt)
}

func (d *Dispatcher) SendToConn(c presence.Conn, evt wsdto.Event) bool {
	if c.Send(evt) {
		d.metrics.RecordDelivered(evt.Type)
		return true
	}
	d.metrics.RecordDropped(evt.Type, "queue_unavailable")
	d.logger.Debug("event dropped",
		zap.String("event", evt.Type),
		zap.String("user_id", c.UserID().String()),
		zap.String("client_id", c.ID()),
	)
	return false
}

func summaryDTO(s *conversation.Summary) *wsdto.Summary {
	if s == nil {
		return nil
	}
	return wsdto.FromSummary(*s)
}
