package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"relay-chat/config"
	"relay-chat/internal/dispatch"
	"relay-chat/internal/handler"
	"relay-chat/internal/metrics"
	"relay-chat/internal/middleware"
	"relay-chat/internal/presence"
	relayredis "relay-chat/internal/redis"
	"relay-chat/internal/repository"
	"relay-chat/internal/rooms"
	"relay-chat/internal/server"
	"relay-chat/internal/services"
	"relay-chat/internal/storage"
	"relay-chat/internal/websocket"
	"relay-chat/pkg/database"
	"relay-chat/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Errorf("relay-chat stopped: %s", err)
		os.Exit(1)
	}
}

// backend is the storage a process runs on plus what it needs to report
// health and release connections.
type backend struct {
	store  repository.Store
	checks map[string]handler.Check
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (*backend, error) {
	b := &backend{checks: map[string]handler.Check{}, close: func() {}}

	switch cfg.StorageDriver {
	case config.StorageMemory:
		l.Logger.Warn("using in-memory storage, data is lost on restart")
		b.store = repository.NewMemoryStore()

	case config.StoragePostgres:
		db, err := database.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := repository.InitSchema(db); err != nil {
			_ = database.ClosePostgres(db)
			return nil, fmt.Errorf("init schema: %w", err)
		}
		b.store = repository.NewPostgresStore(db)
		b.checks["postgres"] = database.PostgresCheck(db)
		b.close = func() { _ = database.ClosePostgres(db) }

	case config.StorageMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		b.store = repository.NewMongoStore(db)
		b.checks["mongo"] = database.MongoCheck(client)
		b.close = func() { _ = client.Disconnect(context.Background()) }

	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	l.Logger.Info("storage ready", zap.String("driver", cfg.StorageDriver))
	return b, nil
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	b, err := openStore(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer b.close()
	store := b.store

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := presence.NewRegistry()
	tracker := rooms.NewTracker()
	dispatcher := dispatch.New(registry, tracker, m, l.Named("dispatch"))

	var (
		sendLimiter    services.SendLimiter
		requestLimiter middleware.RequestLimiter
		mirror         services.PresenceMirror
	)
	if cfg.RedisEnabled() {
		rc := relayredis.NewClient(relayredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()
		if err := relayredis.Ping(ctx, rc); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		limiter := relayredis.NewRateLimiter(rc, relayredis.RateLimitConfig{
			MessageLimit:  cfg.MessageRateLimit,
			MessageWindow: cfg.MessageRateWindow,
			RequestLimit:  cfg.HTTPRateLimit,
			RequestWindow: cfg.HTTPRateWindow,
		})
		sendLimiter, requestLimiter = limiter, limiter

		presenceStore := relayredis.NewPresenceStore(rc, cfg.PresenceTTL)
		// nobody is connected to a process that just started
		if err := presenceStore.ResetOnline(ctx); err != nil {
			l.Logger.Warn("could not reset mirrored online set", zap.Error(err))
		}
		mirror = presenceStore
		b.checks["redis"] = func(ctx context.Context) error { return relayredis.Ping(ctx, rc) }
	} else {
		l.Logger.Info("redis not configured, presence mirror and rate limits disabled")
	}

	var media services.MediaVerifier
	if cfg.S3Enabled() {
		ms, err := storage.NewMediaStore(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		media = ms
	}

	summaries := services.NewSummaryService(store.Messages, store.Groups, l.Named("summary"))
	messages := services.NewMessageService(services.MessageServiceDeps{
		Users:      store.Users,
		Messages:   store.Messages,
		Groups:     store.Groups,
		Summaries:  summaries,
		Dispatcher: dispatcher,
		Rooms:      tracker,
		Media:      media,
		Limiter:    sendLimiter,
		Metrics:    m,
		Logger:     l.Named("messages"),
		EditWindow: cfg.EditWindow,
	})
	reads := services.NewReadStateService(store.Users, store.Messages, store.Groups, summaries, dispatcher, l.Named("reads"), nil)
	groups := services.NewGroupService(store.Users, store.Groups, messages, dispatcher, tracker, l.Named("groups"), nil)
	history := services.NewHistoryService(store.Users, store.Messages, store.Groups, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit)
	users := services.NewUserService(store.Users, registry, dispatcher, mirror, l.Named("users"))
	presenceService := services.NewPresenceService(registry, tracker, store.Users, dispatcher, mirror, m, l.Named("presence"), nil)
	auth := services.NewAuthService(store.Users, cfg)

	gateway := websocket.NewGateway(messages, reads, groups, users, tracker, m, l.Named("gateway"))
	wsHandler := websocket.NewHandler(auth, presenceService, gateway, cfg.WSAllowedOrigins, websocket.ClientOptions{
		SendBuffer:      cfg.WSSendBuffer,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
	}, l.Named("websocket"))

	srv := server.New(cfg, l, m)
	srv.SetupRoutes(&server.Handlers{
		Health:       handler.NewHealthHandler(cfg.StorageDriver, b.checks),
		Conversation: handler.NewConversationHandler(summaries),
		Message:      handler.NewMessageHandler(history, reads),
		Group:        handler.NewGroupHandler(groups, history, reads, summaries),
		User:         handler.NewUserHandler(users),
		WebSocket:    wsHandler,
	}, auth, requestLimiter, reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return presenceService.RefreshMirror(gctx, cfg.PresenceTTL/2) })
	return g.Wait()
}
