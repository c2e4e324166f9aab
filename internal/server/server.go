package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"relay-chat/config"
	"relay-chat/internal/handler"
	"relay-chat/internal/metrics"
	"relay-chat/internal/middleware"
	"relay-chat/internal/websocket"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Health       *handler.HealthHandler
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Group        *handler.GroupHandler
	User         *handler.UserHandler
	WebSocket    *websocket.Handler
}

func New(cfg *config.Config, l *logger.Logger, m *metrics.Metrics) *Server {
	switch cfg.AppMode {
	case ReleaseMode, logger.ProductionMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine:  engine,
		config:  cfg,
		logger:  l,
		metrics: m,
	}
}

// SetupRoutes mounts every endpoint. limiter may be nil when Redis is not
// configured; gatherer backs /metrics.
func (s *Server) SetupRoutes(h *Handlers, verifier middleware.Verifier, limiter middleware.RequestLimiter, gatherer prometheus.Gatherer) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.WSAllowedOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.MetricsMiddleware(s.metrics))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/health", h.Health.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.engine.GET("/ws", h.WebSocket.Serve)

	v1 := s.engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(verifier))
	if limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(limiter, s.metrics, s.logger))
	}

	v1.GET("/conversations", h.Conversation.List)

	messages := v1.Group("/messages")
	{
		messages.GET("/direct/:userId", h.Message.DirectHistory)
		messages.POST("/direct/:userId/read", h.Message.MarkDirectRead)
	}

	groups := v1.Group("/groups")
	{
		groups.POST("", h.Group.Create)
		groups.GET("/:groupId", h.Group.Get)
		groups.POST("/:groupId/members", h.Group.AddMembers)
		groups.DELETE("/:groupId/members/:userId", h.Group.RemoveMember)
		groups.POST("/:groupId/leave", h.Group.Leave)
		groups.GET("/:groupId/messages", h.Group.Messages)
		groups.POST("/:groupId/read", h.Group.MarkRead)
	}

	users := v1.Group("/users")
	{
		users.GET("/online", h.User.Online)
		users.POST("/:id/block", h.User.Block)
		users.DELETE("/:id/block", h.User.Unblock)
		users.GET("/:id/presence", h.User.Presence)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled and then drains in-flight requests for
// up to the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Shutting down, waiting up to %s", s.config.ShutdownTimeout)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
