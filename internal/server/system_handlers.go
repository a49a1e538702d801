package server

import (
	"context"
	"net/http"
	"time"

	"gymcore/internal/api"
	"gymcore/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

// QueueDepth is a redis-backed work queue whose backlog is reported on /health.
type QueueDepth interface {
	QueueLength(ctx context.Context) (int64, error)
}

// HealthChecker reports whether the database and redis answer, and how far
// the background queues are behind.
type HealthChecker struct {
	db     dbPinger
	redis  *redis.Client
	queues map[string]QueueDepth
}

func NewHealthChecker(db dbPinger, rdb *redis.Client, queues map[string]QueueDepth) *HealthChecker {
	return &HealthChecker{db: db, redis: rdb, queues: queues}
}

// Handle godoc
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Failure      503 {object} api.HealthResponse
// @Router       /health [get]
func (h *HealthChecker) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := api.HealthResponse{Status: "ok", Database: "ok", Redis: "ok"}
	if err := h.db.PingContext(ctx); err != nil {
		logger.Error("health: database ping failed", "error", err)
		resp.Status, resp.Database = "degraded", "unreachable"
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		logger.Error("health: redis ping failed", "error", err)
		resp.Status, resp.Redis = "degraded", "unreachable"
	}

	if resp.Redis == "ok" && len(h.queues) > 0 {
		resp.Queues = make(map[string]int64, len(h.queues))
		for name, q := range h.queues {
			n, err := q.QueueLength(ctx)
			if err != nil {
				logger.Warn("health: queue length unavailable", "queue", name, "error", err)
				continue
			}
			resp.Queues[name] = n
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// @Summary      Prometheus metrics
// @Description  Exposes Prometheus metrics in text format
// @Tags         system
// @Produce      text/plain
// @Success      200 {string} string
// @Router       /metrics [get]
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
