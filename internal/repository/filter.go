package repository

import (
	"bytes"
	"sort"
	"time"

	"relay-chat/internal/domain/message"

	"github.com/google/uuid"
)

// Pair selects the direct messages exchanged between A and B in either
// direction.
type Pair struct {
	A uuid.UUID
	B uuid.UUID
}

// MessageFilter is the query language shared by every storage driver. Zero
// values mean "no constraint". Results are newest first unless Oldest is set.
type MessageFilter struct {
	DirectPair      *Pair
	GroupID         uuid.NullUUID
	SenderID        uuid.NullUUID
	ExcludeSenderID uuid.NullUUID
	ReceiverID      uuid.NullUUID
	VisibleTo       uuid.NullUUID

	After     time.Time // exclusive
	NotBefore time.Time // inclusive
	NotAfter  time.Time // inclusive
	Before    time.Time // exclusive, paging cursor

	UnreadOnly    bool
	ExcludeSystem bool
	Oldest        bool
	Limit         int
}

// Match applies every predicate except ordering and limit.
func (f MessageFilter) Match(m message.Message) bool {
	if f.DirectPair != nil {
		if !m.IsDirect() {
			return false
		}
		a, b := f.DirectPair.A, f.DirectPair.B
		r := m.ReceiverID.UUID
		if !((m.SenderID == a && r == b) || (m.SenderID == b && r == a)) {
			return false
		}
	}
	if f.GroupID.Valid && (!m.GroupID.Valid || m.GroupID.UUID != f.GroupID.UUID) {
		return false
	}
	if f.SenderID.Valid && m.SenderID != f.SenderID.UUID {
		return false
	}
	if f.ExcludeSenderID.Valid && m.SenderID == f.ExcludeSenderID.UUID {
		return false
	}
	if f.ReceiverID.Valid && (!m.ReceiverID.Valid || m.ReceiverID.UUID != f.ReceiverID.UUID) {
		return false
	}
	if f.VisibleTo.Valid && !m.VisibleTo(f.VisibleTo.UUID) {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	if !f.NotBefore.IsZero() && m.CreatedAt.Before(f.NotBefore) {
		return false
	}
	if !f.NotAfter.IsZero() && m.CreatedAt.After(f.NotAfter) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	if f.UnreadOnly && m.IsRead {
		return false
	}
	if f.ExcludeSystem && m.Type == message.TypeSystem {
		return false
	}
	return true
}

// sortMessages orders by CreatedAt with the id as tie breaker.
func sortMessages(ms []message.Message, oldest bool) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if oldest {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		c := bytes.Compare(a.ID[:], b.ID[:])
		if oldest {
			return c < 0
		}
		return c > 0
	})
}
