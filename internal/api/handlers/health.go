package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/cartola-optimizer/internal/services"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	snapshots services.SnapshotProvider
	deps      map[string]Pinger
}

func NewHealthHandler(snapshots services.SnapshotProvider, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{snapshots: snapshots, deps: deps}
}

// GetHealth reports dependency status and the predicted round. It returns
// 503 when a dependency is down; missing predictions only degrade it.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := gin.H{
		"status":    "ok",
		"service":   "cartola-optimizer",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}
	if snap := h.snapshots.Snapshot(); snap != nil {
		body["predictions"] = snap
	} else {
		body["status"] = "degraded"
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	c.JSON(status, body)
}
