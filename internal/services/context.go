package services

import (
	"context"
	"time"

	"relay-chat/internal/domain/user"
	"relay-chat/pkg/logger"
)

type ctxKey string

var identityKey ctxKey = "identity"

// WithIdentity stores the verified identity of the caller. The user id is
// also exposed under logger.UserIdKey so request logs carry it.
func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, logger.UserIdKey, id.UserID.String())
}

func IdentityFromContext(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(identityKey).(user.Identity)
	return id, ok
}

// Clock is injected so time-dependent rules can be tested.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
