package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/database"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/memory"
	postgresrepo "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/postgres"
	redisrepo "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/redis"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
)

const rateLimitKeyPrefix = "smartlock:rate-limit"

type storageBackend struct {
	documents  port.DocumentStore
	sessions   port.SessionStore
	rateLimits middleware.RateLimitStore
}

// openStorage picks the document store from storage.backend. Sessions prefer
// Redis, then Postgres, so dashboard logins survive restarts.
func (a *Application) openStorage(ctx context.Context) (storageBackend, error) {
	cfg, log := a.cfg, a.logger
	var backend storageBackend

	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return backend, fmt.Errorf("init postgres: %w", err)
		}
		a.pool = pool
		store := postgresrepo.NewDocumentStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return backend, fmt.Errorf("ensure document schema: %w", err)
		}
		backend.documents = store
	case "redis":
		if a.redis == nil {
			return backend, fmt.Errorf("storage backend redis requires redis.enabled")
		}
		backend.documents = redisrepo.NewDocumentStore(a.redis.Client(), cfg.Redis.DocumentPrefix)
	default:
		log.Warn("using in-memory document store, data is lost on restart")
		backend.documents = memory.NewDocumentStore()
	}

	switch {
	case a.redis != nil:
		backend.sessions = redisrepo.NewSessionStore(a.redis.Client(), cfg.Redis.SessionPrefix)
	case a.pool != nil:
		sessions := postgresrepo.NewSessionStore(a.pool)
		if err := sessions.EnsureSchema(ctx); err != nil {
			return backend, fmt.Errorf("ensure session schema: %w", err)
		}
		backend.sessions = sessions
	default:
		backend.sessions = memory.NewSessionStore()
	}

	if cfg.RateLimit.Backend == "redis" && a.redis != nil {
		backend.rateLimits = redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: rateLimitKeyPrefix,
			TTL:       rateLimitTTL(cfg.RateLimit),
		})
	} else {
		backend.rateLimits = memory.NewRateLimitRepository()
	}

	log.Info("storage initialised",
		zap.String("documents", cfg.Storage.Backend),
		zap.String("rate_limit", cfg.RateLimit.Backend),
	)
	return backend, nil
}

// rateLimitTTL keeps sorted sets alive for twice the longest window.
func rateLimitTTL(cfg config.RateLimitSettings) time.Duration {
	longest := time.Minute
	for _, policy := range []config.RateLimitPolicy{cfg.Login, cfg.API, cfg.ServiceToggle} {
		if policy.Window > longest {
			longest = policy.Window
		}
	}
	return 2 * longest
}
