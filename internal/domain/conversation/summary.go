package conversation

import (
	"time"

	"relay-chat/internal/domain/message"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Summary is the per-viewer view of one conversation. It is derived from the
// message store on demand and never persisted on its own.
type Summary struct {
	Kind        Kind
	ViewerID    uuid.UUID
	OtherUserID uuid.UUID
	GroupID     uuid.UUID
	LastMessage *message.Message
	UnreadCount int64
}

// LastActivity orders conversation lists, newest first.
func (s Summary) LastActivity() time.Time {
	if s.LastMessage == nil {
		return time.Time{}
	}
	return s.LastMessage.CreatedAt
}
