package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// GET /api/health

func (h *HealthHandler) Health(ctx *gin.Context) {
	ctx.Header("Cache-Control", "no-store")

	status := http.StatusOK
	overall := "healthy"
	database := gin.H{"status": "up"}

	latency, err := h.ping(ctx.Request.Context(), 2*time.Second)
	database["latencyMs"] = latency.Milliseconds()
	if err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		database["status"] = "down"
	}

	ctx.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": gin.H{
			"database": database,
		},
	})
}

// GET /healthz

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if _, err := h.ping(ctx.Request.Context(), 500*time.Millisecond); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *HealthHandler) ping(parent context.Context, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	return time.Since(start), err
}
