package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"outreach_gateway/internal/auth"
	"outreach_gateway/internal/config"
	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/middleware"
	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/ratelimit"
	"outreach_gateway/internal/resolver"
	"outreach_gateway/internal/settings"
	"outreach_gateway/internal/storage"
	"outreach_gateway/internal/transport"
)

// HealthChecker is implemented by storage.DB and storage.RedisProvider.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	JWTSecret  []byte
	RateLimits config.RateLimitConfig

	Settings *settings.Service
	Resolver *resolver.Resolver
	Limiter  ratelimit.Limiter
	Audit    logging.Sink

	Database HealthChecker
	Redis    HealthChecker

	// owned infrastructure, released by Close
	db    *storage.DB
	redis *storage.RedisProvider
}

// NewDependencies opens the database and Redis and wires every service.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	encryption, err := storage.NewEncryptionFromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if err := encryption.UseAlgorithm(cfg.EncryptionAlgorithm); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Redis connects lazily; an outage at startup only degrades caching,
	// rate limiting and auditing.
	redisCfg := storage.DefaultRedisConfig()
	redisCfg.Address = cfg.Redis.Address
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	redisProvider := storage.NewRedisProvider(redisCfg)

	cache := storage.NewCache(redisProvider)
	repo := db.NewProviderConfigRepository()

	client := transport.NewClient(nil, transport.Options{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Timeout:    cfg.Retry.Timeout,
	})
	registry := providers.NewRegistry(client)

	var audit logging.Sink = logging.NewNoopSink()
	if cfg.Audit.Enabled {
		audit = logging.NewRedisBuffer(redisProvider, logging.RedisBufferConfig{
			QueueKey: cfg.Audit.QueueKey,
			MaxSize:  cfg.Audit.MaxSize,
		})
	}

	return &Dependencies{
		JWTSecret:  cfg.JWTSecret,
		RateLimits: cfg.RateLimits,
		Settings:   settings.NewService(repo, encryption, cache, registry, audit),
		Resolver: resolver.New(repo, cache, encryption, registry, resolver.Options{
			CacheTTL:  cfg.Cache.ProviderTTL,
			Fallbacks: resolver.FallbacksFromConfig(cfg.Fallback),
		}),
		Limiter:  ratelimit.NewRateLimiter(redisProvider),
		Audit:    audit,
		Database: db,
		Redis:    redisProvider,
		db:       db,
		redis:    redisProvider,
	}, nil
}

// Close releases Redis and the database.
func (d *Dependencies) Close() error {
	var errs *multierror.Error
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errs.ErrorOrNil()
}

// NewRouter creates an HTTP router over deps
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewNoopLimiter()
	}

	mux := http.NewServeMux()

	// Health check endpoint - public
	mux.HandleFunc("GET /health", deps.handleHealth)

	member := middleware.JWTMiddleware(deps.JWTSecret, auth.RoleMember)
	admin := middleware.JWTMiddleware(deps.JWTSecret, auth.RoleAdmin)

	// Provider settings: members read, admins write
	mux.Handle("GET /v1/providers", member(http.HandlerFunc(deps.handleListProviders)))
	mux.Handle("GET /v1/providers/{id}", member(http.HandlerFunc(deps.handleGetProvider)))
	mux.Handle("POST /v1/providers", admin(http.HandlerFunc(deps.handleCreateProvider)))
	mux.Handle("PUT /v1/providers/{id}", admin(http.HandlerFunc(deps.handleUpdateProvider)))
	mux.Handle("PATCH /v1/providers/{id}", admin(http.HandlerFunc(deps.handleSetProviderEnabled)))
	mux.Handle("DELETE /v1/providers/{id}", admin(http.HandlerFunc(deps.handleDeleteProvider)))

	// Rate limit counters for the caller's tenant
	mux.Handle("GET /v1/ratelimits/{capability}", admin(http.HandlerFunc(deps.handleGetRateLimit)))
	mux.Handle("DELETE /v1/ratelimits/{capability}", admin(http.HandlerFunc(deps.handleResetRateLimit)))

	// Capability calls, rate limited per tenant
	mux.Handle("POST /v1/ai/complete", member(http.HandlerFunc(deps.handleComplete)))
	mux.Handle("POST /v1/email/send", member(http.HandlerFunc(deps.handleSendEmail)))
	mux.Handle("POST /v1/people/search", member(http.HandlerFunc(deps.handlePeopleSearch)))

	return middleware.RequestID(middleware.AccessLog(mux))
}

// limitFor returns the configured budget for capability.
func (d *Dependencies) limitFor(capability models.Capability) config.Limit {
	switch capability {
	case models.CapabilityAI:
		return d.RateLimits.AI
	case models.CapabilityEmail:
		return d.RateLimits.Email
	case models.CapabilityPeopleSearch:
		return d.RateLimits.PeopleSearch
	default:
		return config.Limit{}
	}
}
