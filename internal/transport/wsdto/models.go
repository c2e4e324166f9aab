package wsdto

import (
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
)

type Message struct {
	ID                 string     `json:"id"`
	SenderID           string     `json:"senderId"`
	ReceiverID         string     `json:"receiverId,omitempty"`
	GroupID            string     `json:"groupId,omitempty"`
	MessageType        string     `json:"messageType"`
	Text               string     `json:"text,omitempty"`
	Image              string     `json:"image,omitempty"`
	Video              string     `json:"video,omitempty"`
	IsRead             bool       `json:"isRead"`
	IsEdited           bool       `json:"isEdited"`
	EditedAt           *time.Time `json:"editedAt,omitempty"`
	DeletedForEveryone bool       `json:"deletedForEveryone"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func FromMessage(m message.Message) Message {
	out := Message{
		ID:                 m.ID.String(),
		SenderID:           m.SenderID.String(),
		MessageType:        string(m.Type),
		Text:               m.Text,
		IsRead:             m.IsRead,
		IsEdited:           m.IsEdited,
		DeletedForEveryone: m.DeletedForEveryone,
		CreatedAt:          m.CreatedAt,
	}
	if m.ReceiverID.Valid {
		out.ReceiverID = m.ReceiverID.UUID.String()
	}
	if m.GroupID.Valid {
		out.GroupID = m.GroupID.UUID.String()
	}
	switch m.Type {
	case message.TypeImage:
		out.Image = m.MediaRef
	case message.TypeVideo:
		out.Video = m.MediaRef
	}
	if m.EditedAt.Valid {
		t := m.EditedAt.Time
		out.EditedAt = &t
	}
	if m.DeletedAt.Valid {
		t := m.DeletedAt.Time
		out.DeletedAt = &t
	}
	return out
}

func FromMessages(ms []message.Message) []Message {
	out := make([]Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMessage(m))
	}
	return out
}

type Summary struct {
	Kind        string   `json:"kind"`
	OtherUserID string   `json:"otherUserId,omitempty"`
	GroupID     string   `json:"groupId,omitempty"`
	LastMessage *Message `json:"lastMessage"`
	UnreadCount int64    `json:"unreadCount"`
}

func FromSummary(s conversation.Summary) *Summary {
	out := &Summary{Kind: string(s.Kind), UnreadCount: s.UnreadCount}
	if s.Kind == conversation.KindGroup {
		out.GroupID = s.GroupID.String()
	} else {
		out.OtherUserID = s.OtherUserID.String()
	}
	if s.LastMessage != nil {
		m := FromMessage(*s.LastMessage)
		out.LastMessage = &m
	}
	return out
}

func FromSummaries(ss []conversation.Summary) []*Summary {
	out := make([]*Summary, 0, len(ss))
	for _, s := range ss {
		out = append(out, FromSummary(s))
	}
	return out
}

type Member struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	CreatedBy   string   `json:"createdBy"`
	Members     []Member `json:"members"`
}

func FromGroup(g group.Group) Group {
	out := Group{
		ID:          g.ID.String(),
		Name:        g.Name,
		Description: g.Description,
		Icon:        g.Icon,
		CreatedBy:   g.CreatedBy.String(),
		Members:     make([]Member, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		out.Members = append(out.Members, Member{
			UserID:   m.UserID.String(),
			Role:     string(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	return out
}
