package handler

import (
	"context"
	"net/http"
	"time"

	"relay-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// Check probes one backing service.
type Check func(ctx context.Context) error

type HealthHandler struct {
	storage string
	checks  map[string]Check
}

func NewHealthHandler(storage string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{storage: storage, checks: checks}
}

// Health answers 503 when any dependency check fails.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := httpdto.HealthResponse{Status: "ok", Storage: h.storage}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(status, resp)
}
