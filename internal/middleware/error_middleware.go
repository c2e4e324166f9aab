package middleware

import (
	"relay-chat/internal/transport/httpdto"
	relay_errors "relay-chat/pkg/errors"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Errors outside the client taxonomy are logged and answered with a generic
// message.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if !relay_errors.IsKnown(err) && l != nil {
			l.WithContext(c.Request.Context()).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
		c.JSON(httpdto.FromError(err))
	}
}
