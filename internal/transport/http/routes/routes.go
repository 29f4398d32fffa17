package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/handlers"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	TempCodes *usecase.TempCodeService
	Locks     *usecase.LockService
	Jobs      *usecase.JobSupervisor
	Audit     *usecase.AuditService
	Cleanup   *usecase.CleanupService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(middleware.ClassifyClient())

	svc := deps.Services
	if svc.Auth != nil {
		r.Use(middleware.Identify(middleware.IdentifyOptions{
			APIKey:     deps.Config.Auth.APIKey,
			CookieName: deps.Config.Auth.CookieName,
			Resolver:   svc.Auth,
			Logger:     deps.Logger,
		}))
	}

	policy := middleware.NewAuthorizationPolicy(svc.Audit, deps.Logger)
	if deps.RateLimiter != nil {
		deps.RateLimiter.WithRejectHook(policy.RateLimitRejected)
	}
	limits := newLimits(deps)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authenticated := policy.RequireAuthenticated()
	adminOnly := policy.RequireRole(domain.RoleAdmin)
	ownsLock := policy.RequireLockOwnership(nil)

	if svc.Auth != nil {
		authHandler := handlers.NewAuthHandler(svc.Auth, handlers.SessionCookie{
			Name:   deps.Config.Auth.CookieName,
			Secure: deps.Config.Auth.CookieSecure,
		}, deps.Logger)

		r.GET("/login", authHandler.LoginPage)
		r.POST("/login", chain(limits.login, authHandler.LoginForm)...)
		r.POST("/logout", authHandler.Logout)

		authGroup := r.Group("/api/auth")
		authGroup.POST("/login", chain(limits.login, authHandler.Login)...)
		authGroup.POST("/logout", authenticated, authHandler.Logout)
		authGroup.GET("/me", authenticated, authHandler.Me)
	}

	api := r.Group("/api")

	if svc.TempCodes != nil {
		tempCodeHandler := handlers.NewTempCodeHandler(svc.TempCodes)

		codes := api.Group("/temp-codes")
		codes.POST("/create", authenticated, ownsLock, tempCodeHandler.Create)
		codes.GET("/active/:lockId", authenticated, ownsLock, tempCodeHandler.Active)
		codes.POST("/revoke", authenticated, ownsLock, tempCodeHandler.Revoke)
		codes.POST("/verify-public", chain(limits.api, tempCodeHandler.Verify)...)
		codes.POST("/verify", chain(limits.api, tempCodeHandler.Verify)...)

		r.POST("/locks/:lockId/temp-codes", authenticated, ownsLock, tempCodeHandler.CreateForm)
	}

	if svc.Locks != nil {
		lockHandler := handlers.NewLockHandler(svc.Locks)

		locks := api.Group("/locks")
		locks.GET("", adminOnly, lockHandler.List)
		locks.POST("", adminOnly, lockHandler.Create)
		locks.GET("/:lockId", authenticated, ownsLock, lockHandler.Get)
		locks.DELETE("/:lockId", adminOnly, lockHandler.Delete)
		locks.GET("/:lockId/activity", authenticated, ownsLock, lockHandler.Activity)
		locks.GET("/:lockId/pending-users", authenticated, ownsLock, lockHandler.ListPendingUsers)
		locks.POST("/:lockId/pending-users", authenticated, ownsLock, lockHandler.AddPendingUser)
		locks.DELETE("/:lockId/pending-users/:userId", authenticated, ownsLock, lockHandler.RemovePendingUser)

		devices := api.Group("/devices")
		devices.Use(limits.api...)
		devices.POST("/register", policy.RequireRole(domain.RoleSystem), lockHandler.RegisterDevice)
		devices.POST("/heartbeat", policy.RequireRole(domain.RoleSystem), lockHandler.Heartbeat)
	}

	if svc.Jobs != nil {
		serviceHandler := handlers.NewServiceHandler(svc.Jobs)

		services := api.Group("/services")
		services.Use(adminOnly)
		services.POST("/:job/start", chain(limits.serviceToggle, serviceHandler.Start)...)
		services.POST("/:job/stop", chain(limits.serviceToggle, serviceHandler.Stop)...)
		services.GET("/:job/status", serviceHandler.Status)
	}

	if svc.Audit != nil {
		auditHandler := handlers.NewAuditHandler(svc.Audit)
		api.GET("/audit", adminOnly, auditHandler.List)
	}

	if svc.Cleanup != nil {
		maintenanceHandler := handlers.NewMaintenanceHandler(svc.Cleanup)
		api.POST("/maintenance/cleanup", adminOnly, maintenanceHandler.RunCleanup)
	}

	return r
}

type limitSet struct {
	login         []gin.HandlerFunc
	api           []gin.HandlerFunc
	serviceToggle []gin.HandlerFunc
}

func newLimits(deps Dependencies) limitSet {
	if deps.RateLimiter == nil || deps.Config == nil {
		return limitSet{}
	}
	cfg := deps.Config.RateLimit
	return limitSet{
		login:         buildPolicy(deps.RateLimiter, middleware.LoginPolicy, cfg.Login),
		api:           buildPolicy(deps.RateLimiter, middleware.APIPolicy, cfg.API),
		serviceToggle: buildPolicy(deps.RateLimiter, middleware.ServiceTogglePolicy, cfg.ServiceToggle),
	}
}

func buildPolicy(limiter *middleware.RateLimiter, name string, policy config.RateLimitPolicy) []gin.HandlerFunc {
	if policy.Limit <= 0 || policy.Window <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      policy.Limit,
		Window:     policy.Window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{limiter.RateLimit(rule)}
}

// chain copies mw so route registrations never share a backing array.
func chain(mw []gin.HandlerFunc, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+len(handlers))
	out = append(out, mw...)
	return append(out, handlers...)
}
