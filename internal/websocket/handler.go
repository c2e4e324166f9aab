package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"relay-chat/internal/domain/user"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	"relay-chat/internal/transport/wsdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Verifier resolves a connection token to an identity.
type Verifier interface {
	VerifyConnection(ctx context.Context, token string) (user.Identity, error)
}

type Handler struct {
	auth     Verifier
	presence *services.PresenceService
	gateway  *Gateway
	upgrader websocket.Upgrader
	opts     ClientOptions
	logger   *Logger
}

func NewHandler(auth Verifier, presence *services.PresenceService, gateway *Gateway, allowedOrigins []string, opts ClientOptions, logger *zap.Logger) *Handler {
	return &Handler{
		auth:     auth,
		presence: presence,
		gateway:  gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		opts:   opts,
		logger: NewLogger(logger),
	}
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// Serve authenticates, upgrades and then runs the connection until it
// closes. Inbound events of one connection are handled sequentially.
func (h *Handler) Serve(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("missing token", "UNAUTHORIZED"))
		return
	}
	id, err := h.auth.VerifyConnection(c.Request.Context(), token)
	if err != nil {
		c.JSON(httpdto.FromError(err))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade_failed", id.UserID, "", err)
		return
	}

	client := NewClient(conn, id.UserID, h.opts, h.logger)
	// detached so Disconnect still runs after the peer is gone
	ctx := context.WithoutCancel(c.Request.Context())

	if err := h.presence.Connect(ctx, client); err != nil {
		h.logger.Error("connect_failed", id.UserID, client.ID(), err)
		_ = conn.Close()
		return
	}
	h.logger.Info("connected", id.UserID, client.ID())

	go client.writePump()
	client.readPump(ctx, func(ctx context.Context, in wsdto.Inbound) {
		// a replaced connection may still flush frames before it closes
		if !h.presence.IsCurrent(client) {
			return
		}
		if !client.Allow() {
			h.gateway.fail(client, in, relay_errors.New(relay_errors.ErrRateLimited, "too many events, slow down"))
			h.gateway.metrics.RecordRateLimited("connection")
			return
		}
		h.gateway.Handle(ctx, client, id, in)
	})

	client.Close()
	h.presence.Disconnect(ctx, client)
	h.logger.Info("disconnected", id.UserID, client.ID())
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
