package database

import (
	"context"
	"testing"

	"relay-chat/config"
	"relay-chat/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedUsersIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	cfg := &SeedConfig{Usernames: []string{"alice", " bob ", ""}}

	first, err := SeedUsers(ctx, store.Users, cfg)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "bob", first[1].Username)
	assert.Equal(t, "Alice", first[0].DisplayName)

	second, err := SeedUsers(ctx, store.Users, cfg)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, seedID("alice"), second[0].ID)
}

func TestDSNDefaultsSSLMode(t *testing.T) {
	cfg := testConfig()
	assert.Contains(t, DSN(cfg), "sslmode=disable")
	cfg.DBSSLMode = "require"
	assert.Contains(t, DSN(cfg), "sslmode=require")
	assert.Contains(t, DSN(cfg), "dbname=relay_chat")
}

func testConfig() *config.Config {
	return &config.Config{DBHost: "localhost", DBUser: "relay", DBPassword: "secret", DBName: "relay_chat", DBPort: "5432"}
}
