package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record the messaging core works with. BlockedUsers is
// directional: it lists the ids this user has blocked.
type User struct {
	ID           uuid.UUID
	Username     string
	DisplayName  string
	BlockedUsers []uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what a verified connection carries for its whole lifetime.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

func (u User) HasBlocked(id uuid.UUID) bool {
	for _, blocked := range u.BlockedUsers {
		if blocked == id {
			return true
		}
	}
	return false
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

// Clone returns a copy that shares no slices with u.
func (u User) Clone() User {
	out := u
	if u.BlockedUsers != nil {
		out.BlockedUsers = append([]uuid.UUID(nil), u.BlockedUsers...)
	}
	return out
}
