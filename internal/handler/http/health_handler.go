// File: internal/handler/http/health_handler.go
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/jwks"
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"

	healthProbeTimeout = 5 * time.Second
)

// HealthHandler reports liveness and readiness. Readiness probes every
// realm's key source and, when configured, Redis; the gateway itself stays
// live even when a dependency is down because cached keys may still serve.
type HealthHandler struct {
	caches map[string]*jwks.Cache
	redis  *redis.Client
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. redisClient may be nil when the
// in-memory rate limit store is in use.
func NewHealthHandler(caches map[string]*jwks.Cache, redisClient *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		caches: caches,
		redis:  redisClient,
		logger: logger.Named("health_handler"),
	}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusUp})
}

// Readiness probes each dependency and reports per-component status. The
// overall status is DOWN when any component is DOWN, with HTTP 503.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	components := make(map[string]string, len(h.caches)+1)
	overall := statusUp

	for realm, cache := range h.caches {
		status := statusUp
		if err := cache.Healthy(ctx); err != nil {
			h.logger.Warn("Key source unreachable",
				zap.String("realm", realm),
				zap.Error(err),
			)
			status = statusDown
			overall = statusDown
		}
		components["jwks:"+realm] = status
	}

	if h.redis != nil {
		status := statusUp
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn("Redis unreachable", zap.Error(err))
			status = statusDown
			overall = statusDown
		}
		components["redis"] = status
	}

	code := http.StatusOK
	if overall == statusDown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     overall,
		"components": components,
	})
}
