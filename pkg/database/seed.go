package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"relay-chat/internal/domain/user"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

// SeedConfig holds configuration for seeding development users
type SeedConfig struct {
	Usernames []string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Usernames: []string{"alice", "bob", "carol", "dave", "erin"},
	}
}

// seedID derives a stable id from the username so reseeding is idempotent
// across runs and drivers.
func seedID(username string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("relay-chat/seed/"+username))
}

// SeedUsers creates the configured users, skipping those that already exist.
// It returns every seeded user, created now or before.
func SeedUsers(ctx context.Context, users repository.UserRepository, cfg *SeedConfig) ([]user.User, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	out := make([]user.User, 0, len(cfg.Usernames))
	for _, name := range cfg.Usernames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := seedID(name)

		existing, err := users.GetByID(ctx, id)
		if err == nil {
			out = append(out, existing)
			continue
		}
		if !errors.Is(err, relay_errors.ErrNotFound) {
			return nil, fmt.Errorf("look up %s: %w", name, err)
		}

		u := user.User{ID: id, Username: name, DisplayName: strings.ToUpper(name[:1]) + name[1:]}
		if err := users.Create(ctx, &u); err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		log.Printf("Seeded user %s (%s)", name, id)
		out = append(out, u)
	}
	return out, nil
}
