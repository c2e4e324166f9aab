package middleware

import (
	"context"
	"net/http"
	"strconv"

	"relay-chat/internal/metrics"
	"relay-chat/internal/redis"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLimiter is satisfied by *redis.RateLimiter.
type RequestLimiter interface {
	AllowRequest(ctx context.Context, client string) (*redis.RateLimitResult, error)
}

// RateLimitMiddleware applies the REST request budget. Authenticated callers
// are counted by user id, everyone else by client IP. A limiter failure lets
// the request through.
func RateLimitMiddleware(limiter RequestLimiter, m *metrics.Metrics, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		client := c.ClientIP()
		if id, ok := services.IdentityFromContext(c.Request.Context()); ok {
			client = id.UserID.String()
		}

		result, err := limiter.AllowRequest(c.Request.Context(), client)
		if err != nil {
			if l != nil {
				l.WithContext(c.Request.Context()).Warn("rate limit check failed", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			m.RecordRateLimited("http")
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
