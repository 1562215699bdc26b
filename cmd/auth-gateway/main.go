// File: cmd/auth-gateway/main.go
package main

import (
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/config"
	httpHandler "github.com/jan-ru/cap-oclif-keycloack-sub000/internal/handler/http"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/handler/http/middleware"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/identity"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/jwks"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/ratelimit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/token"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/logger"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/shutdown"
)

func main() {
	// Local development convenience; silently absent in production.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	realms, err := config.BuildRealmTable(cfg.Provider)
	if err != nil {
		log.Fatal("Failed to build realm table", zap.Error(err))
	}
	log.Info("Realms configured", zap.Strings("realms", realms.Names()))

	caches := make(map[string]*jwks.Cache, len(realms.Names()))
	resolvers := make(map[string]token.KeyResolver, len(realms.Names()))
	for _, name := range realms.Names() {
		realm, _ := realms.Realm(name)
		cache := jwks.NewCache(realm.JWKSURI(), jwks.Options{
			TTL:          cfg.JWKS.CacheTTL,
			FetchTimeout: cfg.JWKS.FetchTimeout,
			MaxStaleness: cfg.JWKS.MaxStaleness,
		}, logger.WithRealm(log, name))
		caches[name] = cache
		resolvers[name] = cache
	}

	var redisClient *redis.Client
	if cfg.RateLimit.Store == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var sink audit.Sink
	if cfg.Audit.Kafka.Enabled {
		kafkaSink := audit.NewKafkaSink(cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic, log)
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	auditor := audit.NewAuditor(audit.Config{
		Enabled:       cfg.Audit.Enabled,
		IncludeClaims: cfg.Audit.IncludeClaims,
	}, sink, log)

	rateSettings := ratelimit.Settings{
		Window:         cfg.RateLimit.Window,
		MaxAttempts:    cfg.RateLimit.MaxAttempts,
		SkipSuccessful: cfg.RateLimit.SkipSuccessful,
	}
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, rateSettings, auditor, log)
	} else {
		limiter = ratelimit.NewMemoryLimiter(rateSettings, auditor, log)
	}

	validator := token.NewValidator(realms, resolvers, auditor, cfg.Token, log)

	extractor := identity.NewExtractor(cfg.Token.ServiceAccountPrefix)

	authMiddleware := middleware.NewAuthMiddleware(
		validator,
		extractor,
		auditor,
		limiter,
		caches,
		cfg.RateLimit.Enabled,
		rateSettings,
		log,
	)

	healthHandler := httpHandler.NewHealthHandler(caches, redisClient, log)

	router := httpHandler.SetupRouter(authMiddleware, healthHandler, cfg, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	shutdown.Wait(srv, cfg.Server.ShutdownTimeout, log)
}
