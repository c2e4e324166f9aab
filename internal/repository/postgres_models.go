package repository

import (
	"database/sql"
	"time"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type userRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	DisplayName string    `gorm:"type:varchar(128)"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

type blockRecord struct {
	UserID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	BlockedUserID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (blockRecord) TableName() string { return "user_blocks" }

type messageRecord struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SenderID           uuid.UUID      `gorm:"type:uuid;not null;index"`
	ReceiverID         uuid.NullUUID  `gorm:"type:uuid;index"`
	GroupID            uuid.NullUUID  `gorm:"type:uuid;index:idx_messages_group_created,priority:1"`
	MessageType        string         `gorm:"type:varchar(16);not null"`
	Text               string         `gorm:"type:text"`
	MediaRef           string         `gorm:"type:text"`
	IsRead             bool           `gorm:"not null;default:false"`
	IsEdited           bool           `gorm:"not null;default:false"`
	EditedAt           sql.NullTime   `gorm:"column:edited_at"`
	DeletedForSender   bool           `gorm:"not null;default:false"`
	DeletedForReceiver bool           `gorm:"not null;default:false"`
	DeletedForUsers    pq.StringArray `gorm:"type:text[]"`
	DeletedForEveryone bool           `gorm:"not null;default:false"`
	DeletedAt          sql.NullTime   `gorm:"column:deleted_at"`
	Withheld           bool           `gorm:"not null;default:false"`
	CreatedAt          time.Time      `gorm:"not null;index;index:idx_messages_group_created,priority:2"`
}

func (messageRecord) TableName() string { return "messages" }

type groupRecord struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Name            string        `gorm:"type:varchar(128);not null"`
	Description     string        `gorm:"type:text"`
	Icon            string        `gorm:"type:text"`
	CreatedBy       uuid.UUID     `gorm:"type:uuid;not null"`
	IsActive        bool          `gorm:"not null;default:true"`
	LatestMessageID uuid.NullUUID `gorm:"type:uuid"`
	LatestText      string        `gorm:"type:text"`
	LatestType      string        `gorm:"type:varchar(16)"`
	LatestSenderID  uuid.NullUUID `gorm:"type:uuid"`
	LatestCreatedAt sql.NullTime
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (groupRecord) TableName() string { return "groups" }

type memberRecord struct {
	GroupID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Role        string    `gorm:"type:varchar(16);not null"`
	JoinedAt    time.Time `gorm:"not null"`
	LastReadAt  time.Time `gorm:"not null"`
	UnreadCount int64     `gorm:"not null;default:0"`
}

func (memberRecord) TableName() string { return "group_members" }

type departureRecord struct {
	GroupID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Kind       string    `gorm:"type:varchar(16);not null"`
	JoinedAt   time.Time `gorm:"not null"`
	DepartedAt time.Time `gorm:"not null"`
	ByUserID   uuid.UUID `gorm:"type:uuid"`
}

func (departureRecord) TableName() string { return "group_departures" }

func userFromRecord(rec userRecord, blocked []uuid.UUID) user.User {
	return user.User{
		ID:           rec.ID,
		Username:     rec.Username,
		DisplayName:  rec.DisplayName,
		BlockedUsers: blocked,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func messageFromRecord(rec messageRecord) message.Message {
	m := message.Message{
		ID:                 rec.ID,
		SenderID:           rec.SenderID,
		ReceiverID:         rec.ReceiverID,
		GroupID:            rec.GroupID,
		Type:               message.Type(rec.MessageType),
		Text:               rec.Text,
		MediaRef:           rec.MediaRef,
		CreatedAt:          rec.CreatedAt,
		IsRead:             rec.IsRead,
		IsEdited:           rec.IsEdited,
		EditedAt:           rec.EditedAt,
		DeletedForSender:   rec.DeletedForSender,
		DeletedForReceiver: rec.DeletedForReceiver,
		DeletedForEveryone: rec.DeletedForEveryone,
		DeletedAt:          rec.DeletedAt,
		Withheld:           rec.Withheld,
	}
	for _, s := range rec.DeletedForUsers {
		if id, err := uuid.Parse(s); err == nil {
			m.DeletedForUsers = append(m.DeletedForUsers, id)
		}
	}
	return m
}

func recordFromMessage(m message.Message) messageRecord {
	rec := messageRecord{
		ID:                 m.ID,
		SenderID:           m.SenderID,
		ReceiverID:         m.ReceiverID,
		GroupID:            m.GroupID,
		MessageType:        string(m.Type),
		Text:               m.Text,
		MediaRef:           m.MediaRef,
		IsRead:             m.IsRead,
		IsEdited:           m.IsEdited,
		EditedAt:           m.EditedAt,
		DeletedForSender:   m.DeletedForSender,
		DeletedForReceiver: m.DeletedForReceiver,
		DeletedForUsers:    pq.StringArray{},
		DeletedForEveryone: m.DeletedForEveryone,
		DeletedAt:          m.DeletedAt,
		Withheld:           m.Withheld,
		CreatedAt:          m.CreatedAt,
	}
	for _, id := range m.DeletedForUsers {
		rec.DeletedForUsers = append(rec.DeletedForUsers, id.String())
	}
	return rec
}

func groupFromRecords(rec groupRecord, members []memberRecord, departures []departureRecord) group.Group {
	g := group.Group{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Icon:        rec.Icon,
		CreatedBy:   rec.CreatedBy,
		IsActive:    rec.IsActive,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.LatestMessageID.Valid {
		g.LatestMessage = &group.LatestMessage{
			MessageID: rec.LatestMessageID.UUID,
			Text:      rec.LatestText,
			Type:      message.Type(rec.LatestType),
			SenderID:  rec.LatestSenderID.UUID,
			CreatedAt: rec.LatestCreatedAt.Time,
		}
	}
	for _, m := range members {
		g.Members = append(g.Members, group.Member{
			UserID:      m.UserID,
			Role:        group.Role(m.Role),
			JoinedAt:    m.JoinedAt,
			LastReadAt:  m.LastReadAt,
			UnreadCount: m.UnreadCount,
		})
	}
	for _, d := range departures {
		dep := group.Departure{UserID: d.UserID, JoinedAt: d.JoinedAt, At: d.DepartedAt, By: d.ByUserID}
		if group.DepartureKind(d.Kind) == group.DepartureLeft {
			g.LeftMembers = append(g.LeftMembers, dep)
		} else {
			g.RemovedMembers = append(g.RemovedMembers, dep)
		}
	}
	return g
}

func recordFromGroup(g group.Group) groupRecord {
	rec := groupRecord{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Icon:        g.Icon,
		CreatedBy:   g.CreatedBy,
		IsActive:    g.IsActive,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	if g.LatestMessage != nil {
		applyLatest(&rec, *g.LatestMessage)
	}
	return rec
}

func applyLatest(rec *groupRecord, l group.LatestMessage) {
	rec.LatestMessageID = uuid.NullUUID{UUID: l.MessageID, Valid: true}
	rec.LatestText = l.Text
	rec.LatestType = string(l.Type)
	rec.LatestSenderID = uuid.NullUUID{UUID: l.SenderID, Valid: true}
	rec.LatestCreatedAt = sql.NullTime{Time: l.CreatedAt, Valid: true}
}

func recordFromMember(groupID uuid.UUID, m group.Member) memberRecord {
	return memberRecord{
		GroupID:     groupID,
		UserID:      m.UserID,
		Role:        string(m.Role),
		JoinedAt:    m.JoinedAt,
		LastReadAt:  m.LastReadAt,
		UnreadCount: m.UnreadCount,
	}
}
