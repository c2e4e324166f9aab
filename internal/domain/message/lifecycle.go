package message

import (
	"database/sql"
	"time"

	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

// DefaultModificationWindow bounds edit and delete-for-everyone, measured from
// CreatedAt.
const DefaultModificationWindow = 12 * time.Hour

type Phase uint8

const (
	PhaseActive Phase = iota
	PhaseEdited
	PhaseTombstoned
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseEdited:
		return "edited"
	case PhaseTombstoned:
		return "tombstoned"
	default:
		return "unknown"
	}
}

// Lifecycle is the explicit state of a message. The content phase moves
// Active -> Edited -> Tombstoned; the per-viewer hidden marks are orthogonal
// to it and may be combined with any phase.
type Lifecycle struct {
	Phase     Phase
	EditedAt  time.Time
	DeletedAt time.Time

	HiddenForSender   bool
	HiddenForReceiver bool
	HiddenForUsers    []uuid.UUID
}

// Flags is the persisted projection of a Lifecycle.
type Flags struct {
	IsEdited           bool
	EditedAt           sql.NullTime
	DeletedForSender   bool
	DeletedForReceiver bool
	DeletedForUsers    []uuid.UUID
	DeletedForEveryone bool
	DeletedAt          sql.NullTime
}

func LifecycleOf(m Message) Lifecycle {
	l := Lifecycle{
		Phase:             PhaseActive,
		HiddenForSender:   m.DeletedForSender,
		HiddenForReceiver: m.DeletedForReceiver,
	}
	if len(m.DeletedForUsers) > 0 {
		l.HiddenForUsers = append([]uuid.UUID(nil), m.DeletedForUsers...)
	}
	if m.EditedAt.Valid {
		l.EditedAt = m.EditedAt.Time
	}
	switch {
	case m.DeletedForEveryone:
		l.Phase = PhaseTombstoned
		if m.DeletedAt.Valid {
			l.DeletedAt = m.DeletedAt.Time
		}
	case m.IsEdited:
		l.Phase = PhaseEdited
	}
	return l
}

// PartiallyDeleted reports whether at least one viewer hid the message for
// themselves.
func (l Lifecycle) PartiallyDeleted() bool {
	return l.HiddenForSender || l.HiddenForReceiver || len(l.HiddenForUsers) > 0
}

func (l Lifecycle) Project() Flags {
	f := Flags{
		IsEdited:           l.Phase >= PhaseEdited,
		DeletedForSender:   l.HiddenForSender,
		DeletedForReceiver: l.HiddenForReceiver,
		DeletedForEveryone: l.Phase == PhaseTombstoned,
	}
	if len(l.HiddenForUsers) > 0 {
		f.DeletedForUsers = append([]uuid.UUID(nil), l.HiddenForUsers...)
	}
	if f.IsEdited && !l.EditedAt.IsZero() {
		f.EditedAt = sql.NullTime{Time: l.EditedAt, Valid: true}
	}
	if f.DeletedForEveryone && !l.DeletedAt.IsZero() {
		f.DeletedAt = sql.NullTime{Time: l.DeletedAt, Valid: true}
	}
	return f
}

func (m *Message) setLifecycle(l Lifecycle) {
	f := l.Project()
	m.IsEdited = f.IsEdited
	m.EditedAt = f.EditedAt
	m.DeletedForSender = f.DeletedForSender
	m.DeletedForReceiver = f.DeletedForReceiver
	m.DeletedForUsers = f.DeletedForUsers
	m.DeletedForEveryone = f.DeletedForEveryone
	m.DeletedAt = f.DeletedAt
}

// Validate checks the legal combinations of shape and lifecycle flags.
func (m Message) Validate() error {
	if m.ReceiverID.Valid == m.GroupID.Valid {
		return relay_errors.Invalid("exactly one of receiver or group must be set")
	}
	if m.Type == TypeSystem && !m.IsGroup() {
		return relay_errors.Invalid("system messages belong to groups")
	}
	if m.IsDirect() && len(m.DeletedForUsers) > 0 {
		return relay_errors.Invalid("direct messages have no per-member deletions")
	}
	if m.IsGroup() && (m.DeletedForReceiver || m.Withheld) {
		return relay_errors.Invalid("group messages have no receiver flags")
	}
	if m.DeletedForEveryone {
		if !m.IsEdited || m.Text != TombstoneText || !m.DeletedAt.Valid {
			return relay_errors.Invalid("tombstone must carry the deletion notice")
		}
	}
	if m.IsEdited && !m.EditedAt.Valid {
		return relay_errors.Invalid("edited message needs editedAt")
	}
	if m.Type == TypeSystem && (m.IsEdited || LifecycleOf(m).PartiallyDeleted()) {
		return relay_errors.Invalid("system messages are immutable")
	}
	return nil
}

func (m Message) checkSenderMutation(actor uuid.UUID, now time.Time, window time.Duration) error {
	if m.Type == TypeSystem {
		return relay_errors.Invalid("system messages cannot be modified")
	}
	if m.SenderID != actor {
		return relay_errors.Forbidden("only the sender can modify this message")
	}
	if m.DeletedForEveryone {
		return relay_errors.Invalid("message was deleted")
	}
	if window <= 0 {
		window = DefaultModificationWindow
	}
	if now.Sub(m.CreatedAt) > window {
		return relay_errors.WindowExpired("message can no longer be modified")
	}
	return nil
}

// Edit replaces the text of a text message. Sender only, within window.
func (m *Message) Edit(actor uuid.UUID, text string, now time.Time, window time.Duration) error {
	if err := m.checkSenderMutation(actor, now, window); err != nil {
		return err
	}
	if m.Type != TypeText {
		return relay_errors.Invalid("only text messages can be edited")
	}
	if err := ValidateContent(TypeText, text, ""); err != nil {
		return err
	}
	l := LifecycleOf(*m)
	l.Phase = PhaseEdited
	l.EditedAt = now
	m.Text = text
	m.setLifecycle(l)
	return nil
}

// DeleteForEveryone turns the message into a tombstone. Repeating it on a
// tombstone is a no-op and reports changed=false.
func (m *Message) DeleteForEveryone(actor uuid.UUID, now time.Time, window time.Duration) (bool, error) {
	if m.Type != TypeSystem && m.SenderID == actor && m.DeletedForEveryone {
		return false, nil
	}
	if err := m.checkSenderMutation(actor, now, window); err != nil {
		return false, err
	}
	l := LifecycleOf(*m)
	l.Phase = PhaseTombstoned
	l.EditedAt = now
	l.DeletedAt = now
	m.Text = TombstoneText
	m.MediaRef = ""
	m.setLifecycle(l)
	return true, nil
}

// DeleteForMe hides the message for actor only. activeMember tells whether
// actor currently belongs to the message's group; it is ignored for direct
// messages.
func (m *Message) DeleteForMe(actor uuid.UUID, activeMember bool) (bool, error) {
	if m.Type == TypeSystem {
		return false, relay_errors.Invalid("system messages cannot be deleted")
	}
	l := LifecycleOf(*m)
	switch {
	case m.SenderID == actor:
		if l.HiddenForSender {
			return false, nil
		}
		l.HiddenForSender = true
	case m.IsDirect():
		if m.ReceiverID.UUID != actor {
			return false, relay_errors.Forbidden("not a participant of this conversation")
		}
		if l.HiddenForReceiver {
			return false, nil
		}
		l.HiddenForReceiver = true
	default:
		if !activeMember {
			return false, relay_errors.Forbidden("not a member of this group")
		}
		if m.HiddenFor(actor) {
			return false, nil
		}
		l.HiddenForUsers = append(l.HiddenForUsers, actor)
	}
	m.setLifecycle(l)
	return true, nil
}
