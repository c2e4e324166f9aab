package group

import (
	"time"

	"relay-chat/internal/domain/message"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type DepartureKind string

const (
	DepartureLeft    DepartureKind = "left"
	DepartureRemoved DepartureKind = "removed"
)

// Member is an active member. LastReadAt is the read marker; UnreadCount is
// a cache refreshed from it.
type Member struct {
	UserID      uuid.UUID
	Role        Role
	JoinedAt    time.Time
	LastReadAt  time.Time
	UnreadCount int64
}

// Departure records a member who left or was removed. JoinedAt and At bound
// the messages the ex-member can still read.
type Departure struct {
	UserID   uuid.UUID
	JoinedAt time.Time
	At       time.Time
	By       uuid.UUID
}

// LatestMessage is a denormalized sort hint. Readers re-validate it against
// the live message before showing it.
type LatestMessage struct {
	MessageID uuid.UUID
	Text      string
	Type      message.Type
	SenderID  uuid.UUID
	CreatedAt time.Time
}

func LatestFrom(m message.Message) LatestMessage {
	return LatestMessage{
		MessageID: m.ID,
		Text:      m.Text,
		Type:      m.Type,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}

type Group struct {
	ID             uuid.UUID
	Name           string
	Description    string
	Icon           string
	CreatedBy      uuid.UUID
	IsActive       bool
	Members        []Member
	LeftMembers    []Departure
	RemovedMembers []Departure
	LatestMessage  *LatestMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (g Group) Member(userID uuid.UUID) (Member, bool) {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

func (g Group) IsMember(userID uuid.UUID) bool {
	_, ok := g.Member(userID)
	return ok
}

func (g Group) IsAdmin(userID uuid.UUID) bool {
	m, ok := g.Member(userID)
	return ok && m.Role == RoleAdmin
}

func (g Group) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// Departure returns the most recent departure of userID.
func (g Group) Departure(userID uuid.UUID) (Departure, DepartureKind, bool) {
	var (
		found Departure
		kind  DepartureKind
		ok    bool
	)
	scan := func(list []Departure, k DepartureKind) {
		for _, d := range list {
			if d.UserID == userID && (!ok || d.At.After(found.At)) {
				found, kind, ok = d, k, true
			}
		}
	}
	scan(g.LeftMembers, DepartureLeft)
	scan(g.RemovedMembers, DepartureRemoved)
	return found, kind, ok
}

// Window is the span of group messages a user may read. Open means no upper
// bound.
type Window struct {
	From time.Time
	To   time.Time
	Open bool
}

func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	return w.Open || !t.After(w.To)
}

// VisibilityWindow returns the read window of userID: from join onwards for
// active members, join to departure for ex-members.
func (g Group) VisibilityWindow(userID uuid.UUID) (Window, bool) {
	if m, ok := g.Member(userID); ok {
		return Window{From: m.JoinedAt, Open: true}, true
	}
	if d, _, ok := g.Departure(userID); ok {
		return Window{From: d.JoinedAt, To: d.At}, true
	}
	return Window{}, false
}

// Validate checks that each user id appears in at most one of the member,
// left and removed lists.
func (g Group) Validate() error {
	seen := make(map[uuid.UUID]string)
	check := func(id uuid.UUID, list string) error {
		if prev, ok := seen[id]; ok && prev != list {
			return relay_errors.Invalid("user " + id.String() + " is both " + prev + " and " + list)
		}
		seen[id] = list
		return nil
	}
	for _, m := range g.Members {
		if err := check(m.UserID, "member"); err != nil {
			return err
		}
	}
	for _, d := range g.LeftMembers {
		if err := check(d.UserID, "left"); err != nil {
			return err
		}
	}
	for _, d := range g.RemovedMembers {
		if err := check(d.UserID, "removed"); err != nil {
			return err
		}
	}
	if !g.IsMember(g.CreatedBy) && g.IsActive {
		return relay_errors.Invalid("group creator must remain a member")
	}
	return nil
}

// Clone returns a deep copy.
func (g Group) Clone() Group {
	out := g
	out.Members = append([]Member(nil), g.Members...)
	out.LeftMembers = append([]Departure(nil), g.LeftMembers...)
	out.RemovedMembers = append([]Departure(nil), g.RemovedMembers...)
	if g.LatestMessage != nil {
		latest := *g.LatestMessage
		out.LatestMessage = &latest
	}
	return out
}
