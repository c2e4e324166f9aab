package repository

import (
	"context"
	"time"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	// GetMany skips unknown ids.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]user.User, error)
	Block(ctx context.Context, userID, targetID uuid.UUID) error
	Unblock(ctx context.Context, userID, targetID uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	// Update loads the message exclusively, applies fn and persists the
	// result. Nothing is written when fn returns an error.
	Update(ctx context.Context, id uuid.UUID, fn func(*message.Message) error) (message.Message, error)
	Find(ctx context.Context, f MessageFilter) ([]message.Message, error)
	Count(ctx context.Context, f MessageFilter) (int64, error)
	// MarkDirectRead flips IsRead on every unread direct message from
	// senderID to receiverID and returns how many changed.
	MarkDirectRead(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error)
	// DirectCounterparts lists every user that exchanged a direct message
	// with userID.
	DirectCounterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// MemberPatch updates one member record. LastReadAt never moves backwards.
type MemberPatch struct {
	LastReadAt  *time.Time
	UnreadCount *int64
}

type GroupRepository interface {
	Create(ctx context.Context, g *group.Group) error
	GetByID(ctx context.Context, id uuid.UUID) (group.Group, error)
	// ListForUser returns groups where userID is an active member or an
	// ex-member.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]group.Group, error)
	// AddMember adds m and clears any departure record of the same user.
	AddMember(ctx context.Context, groupID uuid.UUID, m group.Member) error
	UpdateMember(ctx context.Context, groupID, userID uuid.UUID, patch MemberPatch) error
	// RemoveMember moves an active member into the departure log of kind.
	RemoveMember(ctx context.Context, groupID uuid.UUID, kind group.DepartureKind, d group.Departure) error
	// SetLatestMessage stores latest unless the cached one is newer.
	SetLatestMessage(ctx context.Context, groupID uuid.UUID, latest group.LatestMessage) error
	// RefreshLatestMessage rewrites the cache only if it references
	// latest.MessageID.
	RefreshLatestMessage(ctx context.Context, groupID uuid.UUID, latest group.LatestMessage) error
}

// Store bundles the repositories of one storage driver.
type Store struct {
	Users    UserRepository
	Messages MessageRepository
	Groups   GroupRepository
}
