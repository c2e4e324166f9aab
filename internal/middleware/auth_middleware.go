package middleware

import (
	"context"
	"net/http"
	"strings"

	"relay-chat/internal/domain/user"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Verifier resolves a bearer token to the caller's identity.
type Verifier interface {
	VerifyConnection(ctx context.Context, token string) (user.Identity, error)
}

func AuthMiddleware(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		id, err := verifier.VerifyConnection(c.Request.Context(), token)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		ctx := services.WithIdentity(c.Request.Context(), id)
		ctx = context.WithValue(ctx, logger.UserIdKey, id.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
