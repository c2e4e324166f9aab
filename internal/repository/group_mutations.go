package repository

import (
	"relay-chat/internal/domain/group"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

// The document stores (memory and mongo) keep a group as one aggregate and
// share these in-place mutations.

func applyAddMember(g *group.Group, m group.Member) error {
	if g.IsMember(m.UserID) {
		return relay_errors.ErrAlreadyExists
	}
	g.LeftMembers = withoutDeparture(g.LeftMembers, m.UserID)
	g.RemovedMembers = withoutDeparture(g.RemovedMembers, m.UserID)
	g.Members = append(g.Members, m)
	return nil
}

func applyMemberPatch(g *group.Group, userID uuid.UUID, patch MemberPatch) error {
	for i := range g.Members {
		if g.Members[i].UserID != userID {
			continue
		}
		if patch.LastReadAt != nil && patch.LastReadAt.After(g.Members[i].LastReadAt) {
			g.Members[i].LastReadAt = *patch.LastReadAt
		}
		if patch.UnreadCount != nil {
			g.Members[i].UnreadCount = *patch.UnreadCount
		}
		return nil
	}
	return relay_errors.ErrNotFound
}

func applyRemoveMember(g *group.Group, kind group.DepartureKind, d group.Departure) error {
	idx := -1
	for i, m := range g.Members {
		if m.UserID == d.UserID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return relay_errors.ErrNotFound
	}
	if d.JoinedAt.IsZero() {
		d.JoinedAt = g.Members[idx].JoinedAt
	}
	g.Members = append(g.Members[:idx:idx], g.Members[idx+1:]...)
	g.LeftMembers = withoutDeparture(g.LeftMembers, d.UserID)
	g.RemovedMembers = withoutDeparture(g.RemovedMembers, d.UserID)
	if kind == group.DepartureLeft {
		g.LeftMembers = append(g.LeftMembers, d)
	} else {
		g.RemovedMembers = append(g.RemovedMembers, d)
	}
	return nil
}

// applySetLatest reports whether the cache changed.
func applySetLatest(g *group.Group, latest group.LatestMessage) bool {
	if g.LatestMessage != nil && g.LatestMessage.CreatedAt.After(latest.CreatedAt) {
		return false
	}
	g.LatestMessage = &latest
	return true
}

func applyRefreshLatest(g *group.Group, latest group.LatestMessage) bool {
	if g.LatestMessage == nil || g.LatestMessage.MessageID != latest.MessageID {
		return false
	}
	g.LatestMessage = &latest
	return true
}

func withoutDeparture(list []group.Departure, userID uuid.UUID) []group.Departure {
	var out []group.Departure
	for _, d := range list {
		if d.UserID != userID {
			out = append(out, d)
		}
	}
	return out
}
