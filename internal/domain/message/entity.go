package message

import (
	"database/sql"
	"strings"
	"time"

	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

type Type string

const (
	TypeText   Type = "text"
	TypeImage  Type = "image"
	TypeVideo  Type = "video"
	TypeSystem Type = "system"
)

// TombstoneText replaces the content of a message deleted for everyone.
const TombstoneText = "This message was deleted"

const MaxTextLength = 4000

func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeText, nil
	case TypeText, TypeImage, TypeVideo, TypeSystem:
		return t, nil
	default:
		return "", relay_errors.Invalid("unknown message type " + s)
	}
}

// Message is either a direct message (ReceiverID set) or a group message
// (GroupID set), never both.
type Message struct {
	ID         uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.NullUUID
	GroupID    uuid.NullUUID
	Type       Type
	Text       string
	MediaRef   string
	CreatedAt  time.Time

	IsRead             bool
	IsEdited           bool
	EditedAt           sql.NullTime
	DeletedForSender   bool
	DeletedForReceiver bool
	DeletedForUsers    []uuid.UUID
	DeletedForEveryone bool
	DeletedAt          sql.NullTime

	// Withheld marks a direct message sent while either party blocked the
	// other. It is never shown to the receiver.
	Withheld bool
}

func (m Message) IsDirect() bool { return m.ReceiverID.Valid }
func (m Message) IsGroup() bool  { return m.GroupID.Valid }

// IsParty reports whether userID is the sender or the receiver of a direct
// message.
func (m Message) IsParty(userID uuid.UUID) bool {
	return m.SenderID == userID || (m.ReceiverID.Valid && m.ReceiverID.UUID == userID)
}

// Counterpart returns the other participant of a direct message as seen by
// userID.
func (m Message) Counterpart(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID.UUID
	}
	return m.SenderID
}

func (m Message) HiddenFor(userID uuid.UUID) bool {
	for _, id := range m.DeletedForUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// VisibleTo is the per-viewer visibility predicate. Tombstoned messages stay
// visible; only delete-for-me hides a message. System messages ignore the
// sender-based flags. For group messages the caller still has to apply the
// viewer's membership window.
func (m Message) VisibleTo(viewer uuid.UUID) bool {
	if m.Type == TypeSystem {
		return true
	}
	if m.SenderID == viewer {
		return !m.DeletedForSender
	}
	if m.IsDirect() {
		if m.ReceiverID.UUID != viewer {
			return false
		}
		return !m.DeletedForReceiver && !m.Withheld
	}
	return !m.HiddenFor(viewer)
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	if m.DeletedForUsers != nil {
		out.DeletedForUsers = append([]uuid.UUID(nil), m.DeletedForUsers...)
	}
	return out
}

// ValidateContent checks that the payload matches the declared type.
func ValidateContent(t Type, text, mediaRef string) error {
	switch t {
	case TypeText:
		if strings.TrimSpace(text) == "" {
			return relay_errors.Invalid("text is required for text messages")
		}
		if mediaRef != "" {
			return relay_errors.Invalid("text messages cannot carry media")
		}
		if len(text) > MaxTextLength {
			return relay_errors.Invalid("text is too long")
		}
	case TypeImage, TypeVideo:
		if strings.TrimSpace(mediaRef) == "" {
			return relay_errors.Invalid(string(t) + " reference is required")
		}
		if text != "" {
			return relay_errors.Invalid(string(t) + " messages cannot carry text")
		}
	case TypeSystem:
		if strings.TrimSpace(text) == "" {
			return relay_errors.Invalid("system messages need text")
		}
	default:
		return relay_errors.Invalid("unknown message type")
	}
	return nil
}
