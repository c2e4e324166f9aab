package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// PresenceStatus is the mirrored presence of one user.
type PresenceStatus struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceStore mirrors the in-process presence registry into Redis. The
// registry stays authoritative for delivery; the mirror only answers
// last-seen queries and survives restarts.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

const (
	presenceKeyPrefix = "presence:"
	presenceOnlineSet = "presence:online"
)

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return presenceKeyPrefix + userID.String()
}

func (p *PresenceStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	return p.write(ctx, PresenceStatus{UserID: userID.String(), IsOnline: true, LastSeen: time.Now().UTC()})
}

func (p *PresenceStore) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return p.write(ctx, PresenceStatus{UserID: userID.String(), IsOnline: false, LastSeen: at.UTC()})
}

func (p *PresenceStore) write(ctx context.Context, status PresenceStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, presenceKeyPrefix+status.UserID, data, p.ttl)
	if status.IsOnline {
		pipe.SAdd(ctx, presenceOnlineSet, status.UserID)
	} else {
		pipe.SRem(ctx, presenceOnlineSet, status.UserID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror presence: %w", err)
	}
	return nil
}

// GetPresence returns the mirrored status, or ok=false if nothing is known.
func (p *PresenceStore) GetPresence(ctx context.Context, userID uuid.UUID) (PresenceStatus, bool, error) {
	data, err := p.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return PresenceStatus{}, false, nil
	}
	if err != nil {
		return PresenceStatus{}, false, err
	}
	var status PresenceStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return PresenceStatus{}, false, err
	}
	return status, true, nil
}

// LastSeen reports when userID was last connected.
func (p *PresenceStore) LastSeen(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	status, ok, err := p.GetPresence(ctx, userID)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return status.LastSeen, true, nil
}

// ResetOnline clears the online set. A fresh process has no connections,
// so entries left by a previous run are stale.
func (p *PresenceStore) ResetOnline(ctx context.Context) error {
	return p.client.Del(ctx, presenceOnlineSet).Err()
}

func (p *PresenceStore) OnlineCount(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, presenceOnlineSet).Result()
}
