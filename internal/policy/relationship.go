package policy

import (
	"relay-chat/internal/domain/user"

	"github.com/google/uuid"
)

// Blocked reports whether either side blocked the other.
func Blocked(a, b user.User) bool {
	return a.HasBlocked(b.ID) || b.HasBlocked(a.ID)
}

// CanDeliver answers whether a live event from sender may reach target.
// Suppression is bidirectional.
func CanDeliver(sender, target user.User) bool {
	return !Blocked(sender, target)
}

// GroupAudience splits the other members of a group for one send. Blocked
// holds members the sender blocked, Blocking holds members who blocked the
// sender; a member can be in both.
type GroupAudience struct {
	Deliverable []uuid.UUID
	Blocked     []uuid.UUID
	Blocking    []uuid.UUID

	allowed map[uuid.UUID]struct{}
}

func (a GroupAudience) Allows(userID uuid.UUID) bool {
	_, ok := a.allowed[userID]
	return ok
}

// CanDeliverToGroup computes the audience once per send. The sender is
// skipped if it appears in members.
func CanDeliverToGroup(sender user.User, members []user.User) GroupAudience {
	a := GroupAudience{allowed: make(map[uuid.UUID]struct{}, len(members))}
	for _, m := range members {
		if m.ID == sender.ID {
			continue
		}
		blocked := sender.HasBlocked(m.ID)
		blocking := m.HasBlocked(sender.ID)
		if blocked {
			a.Blocked = append(a.Blocked, m.ID)
		}
		if blocking {
			a.Blocking = append(a.Blocking, m.ID)
		}
		if !blocked && !blocking {
			a.Deliverable = append(a.Deliverable, m.ID)
			a.allowed[m.ID] = struct{}{}
		}
	}
	return a
}

// FilterVisible returns the ids among others that viewer may see in presence
// lists, i.e. those with no block in either direction. viewer itself is
// dropped.
func FilterVisible(viewer user.User, others []user.User) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(others))
	for _, o := range others {
		if o.ID == viewer.ID || Blocked(viewer, o) {
			continue
		}
		out = append(out, o.ID)
	}
	return out
}
