package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"relay-chat/config"
	"relay-chat/internal/repository"
	"relay-chat/internal/services"
	"relay-chat/pkg/database"
)

const usage = `
Relay Chat - Storage CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Create tables (postgres) or indexes (mongo) for STORAGE_DRIVER
  status      Check that the configured store is reachable
  seed-dev    Create development users and print an access token for each

Flags:
  -users string       Comma-separated usernames for seed-dev (default "alice,bob,carol,dave,erin")
  -token-ttl duration Lifetime of the printed tokens (default 24h)

Examples:
  go run ./cmd/migrate up
  STORAGE_DRIVER=mongo go run ./cmd/migrate up
  go run ./cmd/migrate -users alice,bob seed-dev
`

func main() {
	users := flag.String("users", strings.Join(database.DefaultSeedConfig().Usernames, ","), "Comma-separated usernames for seed-dev")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed tokens")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	cfg := config.LoadConfig()
	ctx := context.Background()

	switch command {
	case "up":
		runUp(ctx, cfg)
	case "status":
		withStore(ctx, cfg, func(repository.Store) {
			log.Printf("Storage %s: OK", cfg.StorageDriver)
		})
	case "seed-dev":
		withStore(ctx, cfg, func(store repository.Store) {
			runSeedDevelopment(ctx, cfg, store, strings.Split(*users, ","), *tokenTTL)
		})
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runUp(ctx context.Context, cfg *config.Config) {
	log.Printf("Preparing %s storage...", cfg.StorageDriver)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := database.ConnectPostgres(ctx, cfg)
		if err != nil {
			log.Fatalf("Connection failed: %v", err)
		}
		defer database.ClosePostgres(db)
		if err := repository.InitSchema(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	case config.StorageMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("Connection failed: %v", err)
		}
		defer client.Disconnect(context.Background())
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			log.Fatalf("Index creation failed: %v", err)
		}
	default:
		log.Fatalf("Nothing to migrate for STORAGE_DRIVER=%q", cfg.StorageDriver)
	}

	log.Println("Migrations completed successfully")
}

// withStore opens the persistent store of cfg, runs fn and closes it again.
func withStore(ctx context.Context, cfg *config.Config, fn func(repository.Store)) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := database.ConnectPostgres(ctx, cfg)
		if err != nil {
			log.Fatalf("Connection failed: %v", err)
		}
		defer database.ClosePostgres(db)
		fn(repository.NewPostgresStore(db))
	case config.StorageMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("Connection failed: %v", err)
		}
		defer client.Disconnect(context.Background())
		fn(repository.NewMongoStore(db))
	default:
		log.Fatalf("STORAGE_DRIVER=%q has no persistent store", cfg.StorageDriver)
	}
}

func runSeedDevelopment(ctx context.Context, cfg *config.Config, store repository.Store, usernames []string, ttl time.Duration) {
	log.Println("Seeding development users...")

	seeded, err := database.SeedUsers(ctx, store.Users, &database.SeedConfig{Usernames: usernames})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	auth := services.NewAuthService(store.Users, cfg)
	for _, u := range seeded {
		token, err := auth.IssueAccessToken(u.ID, u.Username, ttl)
		if err != nil {
			log.Fatalf("Token for %s failed: %v", u.Username, err)
		}
		fmt.Printf("%-10s %s %s\n", u.Username, u.ID, token)
	}
	log.Printf("Seeded %d users", len(seeded))
}
