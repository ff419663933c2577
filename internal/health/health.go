// Package health exposes liveness and readiness probes. Liveness always
// reports healthy once the process is serving; readiness additionally
// checks whatever adapter is currently installed (e.g. Redis pub/sub).
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/sio-engine/socketio/internal/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is satisfied by any installed adapter capable of reporting
// backend connectivity. redisadapter.Adapter implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	pinger Pinger
}

// NewHandler builds a health handler. pinger may be nil, meaning this
// process runs without a shared backend and is always ready.
func NewHandler(pinger Pinger) *Handler {
	return &Handler{pinger: pinger}
}

type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness always reports 200 while the process is running.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness reports 503 when an installed adapter's backend is
// unreachable, and 200 otherwise (including when no adapter is
// installed).
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := "healthy"
	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			logging.Error(ctx, "adapter readiness check failed", zap.Error(err))
			status = "unhealthy"
		}
		checks["adapter"] = status
	}

	code := http.StatusOK
	overall := "ready"
	if status != "healthy" {
		code = http.StatusServiceUnavailable
		overall = "unavailable"
	}

	c.JSON(code, readinessResponse{
		Status:    overall,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
