package repository

import (
	"context"
	"sync"

	"relay-chat/internal/domain/group"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

// NewMemoryStore returns repositories backed by process memory. Every read
// and write copies, so callers never share slices with the store.
func NewMemoryStore() Store {
	return Store{
		Users:    NewMemoryUserRepository(),
		Messages: NewMemoryMessageRepository(),
		Groups:   NewMemoryGroupRepository(),
	}
}

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]user.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]user.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return relay_errors.ErrAlreadyExists
	}
	for _, existing := range r.users {
		if u.Username != "" && existing.Username == u.Username {
			return relay_errors.ErrAlreadyExists
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id uuid.UUID) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return user.User{}, relay_errors.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryUserRepository) GetMany(_ context.Context, ids []uuid.UUID) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

func (r *MemoryUserRepository) Block(_ context.Context, userID, targetID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return relay_errors.ErrNotFound
	}
	if u.HasBlocked(targetID) {
		return nil
	}
	u = u.Clone()
	u.BlockedUsers = append(u.BlockedUsers, targetID)
	r.users[userID] = u
	return nil
}

func (r *MemoryUserRepository) Unblock(_ context.Context, userID, targetID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return relay_errors.ErrNotFound
	}
	kept := make([]uuid.UUID, 0, len(u.BlockedUsers))
	for _, id := range u.BlockedUsers {
		if id != targetID {
			kept = append(kept, id)
		}
	}
	u.BlockedUsers = kept
	r.users[userID] = u
	return nil
}

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]message.Message
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[uuid.UUID]message.Message)}
}

func (r *MemoryMessageRepository) Create(_ context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; ok {
		return relay_errors.ErrAlreadyExists
	}
	r.messages[m.ID] = m.Clone()
	return nil
}

func (r *MemoryMessageRepository) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return message.Message{}, relay_errors.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *MemoryMessageRepository) Update(_ context.Context, id uuid.UUID, fn func(*message.Message) error) (message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.messages[id]
	if !ok {
		return message.Message{}, relay_errors.ErrNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return message.Message{}, err
	}
	r.messages[id] = working.Clone()
	return working, nil
}

func (r *MemoryMessageRepository) Find(_ context.Context, f MessageFilter) ([]message.Message, error) {
	r.mu.RLock()
	out := make([]message.Message, 0)
	for _, m := range r.messages {
		if f.Match(m) {
			out = append(out, m.Clone())
		}
	}
	r.mu.RUnlock()

	sortMessages(out, f.Oldest)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryMessageRepository) Count(_ context.Context, f MessageFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, m := range r.messages {
		if f.Match(m) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepository) MarkDirectRead(_ context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := MessageFilter{
		SenderID:   uuid.NullUUID{UUID: senderID, Valid: true},
		ReceiverID: uuid.NullUUID{UUID: receiverID, Valid: true},
		UnreadOnly: true,
	}
	var n int64
	for id, m := range r.messages {
		// withheld messages were never shown, so they are never read
		if f.Match(m) && !m.Withheld {
			m.IsRead = true
			r.messages[id] = m
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepository) DirectCounterparts(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0)
	for _, m := range r.messages {
		if !m.IsDirect() || !m.IsParty(userID) {
			continue
		}
		other := m.Counterpart(userID)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out, nil
}

type MemoryGroupRepository struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]group.Group
}

func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{groups: make(map[uuid.UUID]group.Group)}
}

func (r *MemoryGroupRepository) Create(_ context.Context, g *group.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.ID]; ok {
		return relay_errors.ErrAlreadyExists
	}
	r.groups[g.ID] = g.Clone()
	return nil
}

func (r *MemoryGroupRepository) GetByID(_ context.Context, id uuid.UUID) (group.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return group.Group{}, relay_errors.ErrNotFound
	}
	return g.Clone(), nil
}

func (r *MemoryGroupRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]group.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]group.Group, 0)
	for _, g := range r.groups {
		if _, ok := g.VisibilityWindow(userID); ok {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

// mutate applies fn to a copy of the group and stores it when fn succeeds.
func (r *MemoryGroupRepository) mutate(groupID uuid.UUID, fn func(*group.Group) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return relay_errors.ErrNotFound
	}
	working := g.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	r.groups[groupID] = working
	return nil
}

func (r *MemoryGroupRepository) AddMember(_ context.Context, groupID uuid.UUID, m group.Member) error {
	return r.mutate(groupID, func(g *group.Group) error {
		return applyAddMember(g, m)
	})
}

func (r *MemoryGroupRepository) UpdateMember(_ context.Context, groupID, userID uuid.UUID, patch MemberPatch) error {
	return r.mutate(groupID, func(g *group.Group) error {
		return applyMemberPatch(g, userID, patch)
	})
}

func (r *MemoryGroupRepository) RemoveMember(_ context.Context, groupID uuid.UUID, kind group.DepartureKind, d group.Departure) error {
	return r.mutate(groupID, func(g *group.Group) error {
		return applyRemoveMember(g, kind, d)
	})
}

func (r *MemoryGroupRepository) SetLatestMessage(_ context.Context, groupID uuid.UUID, latest group.LatestMessage) error {
	return r.mutate(groupID, func(g *group.Group) error {
		applySetLatest(g, latest)
		return nil
	})
}

func (r *MemoryGroupRepository) RefreshLatestMessage(_ context.Context, groupID uuid.UUID, latest group.LatestMessage) error {
	return r.mutate(groupID, func(g *group.Group) error {
		applyRefreshLatest(g, latest)
		return nil
	})
}
