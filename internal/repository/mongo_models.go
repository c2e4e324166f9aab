package repository

import (
	"database/sql"
	"time"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"

	"github.com/google/uuid"
)

// Mongo documents store ids as canonical uuid strings.

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	DisplayName  string    `bson:"display_name,omitempty"`
	BlockedUsers []string  `bson:"blocked_users"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type messageDoc struct {
	ID                 string     `bson:"_id"`
	SenderID           string     `bson:"sender_id"`
	ReceiverID         string     `bson:"receiver_id,omitempty"`
	GroupID            string     `bson:"group_id,omitempty"`
	Type               string     `bson:"message_type"`
	Text               string     `bson:"text,omitempty"`
	MediaRef           string     `bson:"media_ref,omitempty"`
	IsRead             bool       `bson:"is_read"`
	IsEdited           bool       `bson:"is_edited"`
	EditedAt           *time.Time `bson:"edited_at,omitempty"`
	DeletedForSender   bool       `bson:"deleted_for_sender"`
	DeletedForReceiver bool       `bson:"deleted_for_receiver"`
	DeletedForUsers    []string   `bson:"deleted_for_users"`
	DeletedForEveryone bool       `bson:"deleted_for_everyone"`
	DeletedAt          *time.Time `bson:"deleted_at,omitempty"`
	Withheld           bool       `bson:"withheld"`
	CreatedAt          time.Time  `bson:"created_at"`
	Version            int64      `bson:"version"`
}

type memberDoc struct {
	UserID      string    `bson:"user_id"`
	Role        string    `bson:"role"`
	JoinedAt    time.Time `bson:"joined_at"`
	LastReadAt  time.Time `bson:"last_read_at"`
	UnreadCount int64     `bson:"unread_count"`
}

type departureDoc struct {
	UserID   string    `bson:"user_id"`
	JoinedAt time.Time `bson:"joined_at"`
	At       time.Time `bson:"at"`
	By       string    `bson:"by,omitempty"`
}

type latestDoc struct {
	MessageID string    `bson:"message_id"`
	Text      string    `bson:"text"`
	Type      string    `bson:"message_type"`
	SenderID  string    `bson:"sender_id"`
	CreatedAt time.Time `bson:"created_at"`
}

type groupDoc struct {
	ID             string         `bson:"_id"`
	Name           string         `bson:"name"`
	Description    string         `bson:"description,omitempty"`
	Icon           string         `bson:"icon,omitempty"`
	CreatedBy      string         `bson:"created_by"`
	IsActive       bool           `bson:"is_active"`
	Members        []memberDoc    `bson:"members"`
	LeftMembers    []departureDoc `bson:"left_members"`
	RemovedMembers []departureDoc `bson:"removed_members"`
	LatestMessage  *latestDoc     `bson:"latest_message,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at"`
	Version        int64          `bson:"version"`
}

func parseIDs(ss []string) []uuid.UUID {
	var out []uuid.UUID
	for _, s := range ss {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func nullUUIDString(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

func parseNullUUID(s string) uuid.NullUUID {
	if s == "" {
		return uuid.NullUUID{}
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func userFromDoc(d userDoc) user.User {
	return user.User{
		ID:           uuid.MustParse(d.ID),
		Username:     d.Username,
		DisplayName:  d.DisplayName,
		BlockedUsers: parseIDs(d.BlockedUsers),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func docFromMessage(m message.Message, version int64) messageDoc {
	return messageDoc{
		ID:                 m.ID.String(),
		SenderID:           m.SenderID.String(),
		ReceiverID:         nullUUIDString(m.ReceiverID),
		GroupID:            nullUUIDString(m.GroupID),
		Type:               string(m.Type),
		Text:               m.Text,
		MediaRef:           m.MediaRef,
		IsRead:             m.IsRead,
		IsEdited:           m.IsEdited,
		EditedAt:           timePtr(m.EditedAt),
		DeletedForSender:   m.DeletedForSender,
		DeletedForReceiver: m.DeletedForReceiver,
		DeletedForUsers:    idStrings(m.DeletedForUsers),
		DeletedForEveryone: m.DeletedForEveryone,
		DeletedAt:          timePtr(m.DeletedAt),
		Withheld:           m.Withheld,
		CreatedAt:          m.CreatedAt,
		Version:            version,
	}
}

func messageFromDoc(d messageDoc) message.Message {
	return message.Message{
		ID:                 uuid.MustParse(d.ID),
		SenderID:           uuid.MustParse(d.SenderID),
		ReceiverID:         parseNullUUID(d.ReceiverID),
		GroupID:            parseNullUUID(d.GroupID),
		Type:               message.Type(d.Type),
		Text:               d.Text,
		MediaRef:           d.MediaRef,
		CreatedAt:          d.CreatedAt,
		IsRead:             d.IsRead,
		IsEdited:           d.IsEdited,
		EditedAt:           nullTime(d.EditedAt),
		DeletedForSender:   d.DeletedForSender,
		DeletedForReceiver: d.DeletedForReceiver,
		DeletedForUsers:    parseIDs(d.DeletedForUsers),
		DeletedForEveryone: d.DeletedForEveryone,
		DeletedAt:          nullTime(d.DeletedAt),
		Withheld:           d.Withheld,
	}
}

func docFromGroup(g group.Group, version int64) groupDoc {
	d := groupDoc{
		ID:             g.ID.String(),
		Name:           g.Name,
		Description:    g.Description,
		Icon:           g.Icon,
		CreatedBy:      g.CreatedBy.String(),
		IsActive:       g.IsActive,
		Members:        make([]memberDoc, 0, len(g.Members)),
		LeftMembers:    departureDocs(g.LeftMembers),
		RemovedMembers: departureDocs(g.RemovedMembers),
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
		Version:        version,
	}
	for _, m := range g.Members {
		d.Members = append(d.Members, memberDoc{
			UserID:      m.UserID.String(),
			Role:        string(m.Role),
			JoinedAt:    m.JoinedAt,
			LastReadAt:  m.LastReadAt,
			UnreadCount: m.UnreadCount,
		})
	}
	if l := g.LatestMessage; l != nil {
		d.LatestMessage = &latestDoc{
			MessageID: l.MessageID.String(),
			Text:      l.Text,
			Type:      string(l.Type),
			SenderID:  l.SenderID.String(),
			CreatedAt: l.CreatedAt,
		}
	}
	return d
}

func departureDocs(list []group.Departure) []departureDoc {
	out := make([]departureDoc, 0, len(list))
	for _, dep := range list {
		doc := departureDoc{UserID: dep.UserID.String(), JoinedAt: dep.JoinedAt, At: dep.At}
		if dep.By != uuid.Nil {
			doc.By = dep.By.String()
		}
		out = append(out, doc)
	}
	return out
}

func departuresFromDocs(list []departureDoc) []group.Departure {
	var out []group.Departure
	for _, d := range list {
		dep := group.Departure{UserID: uuid.MustParse(d.UserID), JoinedAt: d.JoinedAt, At: d.At}
		if by := parseNullUUID(d.By); by.Valid {
			dep.By = by.UUID
		}
		out = append(out, dep)
	}
	return out
}

func groupFromDoc(d groupDoc) group.Group {
	g := group.Group{
		ID:             uuid.MustParse(d.ID),
		Name:           d.Name,
		Description:    d.Description,
		Icon:           d.Icon,
		CreatedBy:      uuid.MustParse(d.CreatedBy),
		IsActive:       d.IsActive,
		LeftMembers:    departuresFromDocs(d.LeftMembers),
		RemovedMembers: departuresFromDocs(d.RemovedMembers),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, m := range d.Members {
		g.Members = append(g.Members, group.Member{
			UserID:      uuid.MustParse(m.UserID),
			Role:        group.Role(m.Role),
			JoinedAt:    m.JoinedAt,
			LastReadAt:  m.LastReadAt,
			UnreadCount: m.UnreadCount,
		})
	}
	if l := d.LatestMessage; l != nil {
		g.LatestMessage = &group.LatestMessage{
			MessageID: uuid.MustParse(l.MessageID),
			Text:      l.Text,
			Type:      message.Type(l.Type),
			SenderID:  uuid.MustParse(l.SenderID),
			CreatedAt: l.CreatedAt,
		}
	}
	return g
}
