// File: internal/handler/http/router.go

package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/config"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/handler/http/middleware"
)

// ProtectedRegistrar lets downstream services mount additional routes
// inside the authenticated API group.
type ProtectedRegistrar func(group *gin.RouterGroup)

// SetupRouter builds the gin engine: public health and metrics endpoints,
// and an /api/v1 group guarded by the authentication middleware.
func SetupRouter(
	authMiddleware *middleware.AuthMiddleware,
	healthHandler *HealthHandler,
	cfg *config.Config,
	logger *zap.Logger,
	registrars ...ProtectedRegistrar,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CorsMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", healthHandler.Health)
	router.GET("/readiness", healthHandler.Readiness)
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	meHandler := NewMeHandler(logger)

	api := router.Group("/api/v1")
	api.Use(authMiddleware.Handler())
	{
		api.GET("/me", meHandler.Me)

		for _, register := range registrars {
			register(api)
		}
	}

	return router
}
