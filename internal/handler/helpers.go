package handler

import (
	"net/http"
	"time"

	"relay-chat/internal/domain/user"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// caller returns the identity AuthMiddleware attached, answering 401 when
// there is none.
func caller(c *gin.Context) (user.Identity, bool) {
	id, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return user.Identity{}, false
	}
	return id, true
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid "+name, "INVALID_REQUEST"))
		return uuid.Nil, false
	}
	return id, true
}

func parseIDs(raw []string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func historyQuery(c *gin.Context) (time.Time, int, bool) {
	var q httpdto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid paging parameters", "INVALID_REQUEST"))
		return time.Time{}, 0, false
	}
	var before time.Time
	if q.Before != "" {
		t, err := time.Parse(time.RFC3339Nano, q.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("before must be an RFC 3339 timestamp", "INVALID_REQUEST"))
			return time.Time{}, 0, false
		}
		before = t
	}
	return before, q.Limit, true
}
