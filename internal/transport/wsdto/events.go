package wsdto

import (
	"encoding/json"
	"time"
)

// Inbound event names
const (
	EventSendMessage              = "sendMessage"
	EventEditMessage              = "editMessage"
	EventDeleteMessageForMe       = "deleteMessageForMe"
	EventDeleteMessageForEveryone = "deleteMessageForEveryone"
	EventSendGroupMessage         = "sendGroupMessage"
	EventJoinChat                 = "joinChat"
	EventLeaveChat                = "leaveChat"
	EventJoinGroupChat            = "joinGroupChat"
	EventLeaveGroupChat           = "leaveGroupChat"
	EventMarkMessagesAsRead       = "markMessagesAsRead"
	EventMarkGroupMessagesAsRead  = "markGroupMessagesAsRead"
)

// Outbound event names
const (
	EventReceiveMessage            = "receiveMessage"
	EventMessageSent               = "messageSent"
	EventMessageEdited             = "messageEdited"
	EventMessageDeletedForMe       = "messageDeletedForMe"
	EventMessageDeletedForEveryone = "messageDeletedForEveryone"
	EventNewMessage                = "newMessage"
	EventMessagesRead              = "messagesRead"
	EventOnlineUsers               = "onlineUsers"
	EventUserOnline                = "userOnline"
	EventUserOffline               = "userOffline"
	EventGroupCreated              = "groupCreated"
	EventMemberRemovedFromGroup    = "memberRemovedFromGroup"
	EventGroupMemberRemoved        = "groupMemberRemoved"
	EventGroupMemberLeft           = "groupMemberLeft"
	EventError                     = "error"
)

// Event is one outbound frame.
type Event struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload, SentAt: time.Now().UTC()}
}

// Inbound is one frame read from a client.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SendMessageRequest struct {
	ReceiverID      string `json:"receiverId"`
	MessageType     string `json:"messageType"`
	Text            string `json:"text"`
	Image           string `json:"image"`
	Video           string `json:"video"`
	ClientMessageID string `json:"clientMessageId"`
}

type SendGroupMessageRequest struct {
	GroupID         string `json:"groupId"`
	MessageType     string `json:"messageType"`
	Text            string `json:"text"`
	Image           string `json:"image"`
	Video           string `json:"video"`
	ClientMessageID string `json:"clientMessageId"`
}

type EditMessageRequest struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type MessageRefRequest struct {
	MessageID string `json:"messageId"`
}

// ChatRequest addresses a direct chat by the other participant.
type ChatRequest struct {
	UserID string `json:"userId"`
}

type GroupRequest struct {
	GroupID string `json:"groupId"`
}

type MessageEvent struct {
	Message         Message  `json:"message"`
	Summary         *Summary `json:"summary,omitempty"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`
}

type DeletedForMeEvent struct {
	MessageID string   `json:"messageId"`
	Summary   *Summary `json:"summary,omitempty"`
}

// ReadEvent tells a participant that ReaderID has read the conversation.
type ReadEvent struct {
	ReaderID    string `json:"readerId"`
	OtherUserID string `json:"otherUserId,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
	UnreadCount *int64 `json:"unreadCount,omitempty"`
}

type PresenceEvent struct {
	UserID string `json:"userId"`
}

type OnlineUsersEvent struct {
	UserIDs []string `json:"userIds"`
}

type GroupEvent struct {
	Group Group `json:"group"`
}

// MemberEvent frames membership changes. The removed member gets only the
// group id; remaining members also get the updated group.
type MemberEvent struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	ByUserID string `json:"byUserId,omitempty"`
	Group    *Group `json:"group,omitempty"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
