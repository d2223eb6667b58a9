package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/config"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/handlers"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Evaluator *usecase.AccessEvaluator
	Sessions  *usecase.SessionService
	Policies  *usecase.PolicyStore
	Audit     *usecase.AuditRecorder
	Events    *usecase.EventService
	Tenants   *usecase.TenantService
	Resolver  *usecase.PrincipalResolver
}

// RepositorySet groups the repositories administrative endpoints read from
// directly.
type RepositorySet struct {
	Sessions port.SessionRepository
	Policies port.PolicyRepository
	Audit    port.AuditRepository
	Tenants  port.TenantRepository
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	RateLimiter  *middleware.RateLimiter
	HTTPMetrics  *middleware.HTTPMetrics
	Services     ServiceSet
	Repositories RepositorySet
	Database     DatabaseChecker
	Cache        CacheChecker
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

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

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

	api := r.Group("/v1")
	{
		var authMiddleware gin.HandlerFunc
		if deps.Services.Resolver != nil {
			authMiddleware = middleware.RequireAuth(deps.Services.Resolver)
		}

		adminRoles := deps.Config.Auth.AdminRoles
		if len(adminRoles) == 0 {
			adminRoles = []string{"owner", "admin"}
		}
		requireAdmin := middleware.RequireAnyTenantRole(adminRoles)
		requireTenantAdmin := middleware.RequireTenantRole("id", adminRoles)

		if deps.Services.Evaluator != nil {
			authorizeGroup := api.Group("")
			if authMiddleware != nil {
				authorizeGroup.Use(authMiddleware)
			}
			if rule, ok := rateLimitRule(deps, "authorize_ip", deps.Config.RateLimit.AuthorizeMaxAttempts); ok {
				authorizeGroup.Use(deps.RateLimiter.RateLimit(rule))
			}
			handlers.NewAuthorizeHandler(deps.Services.Evaluator).RegisterRoutes(authorizeGroup)
		}

		if deps.Services.Events != nil {
			eventsGroup := api.Group("")
			if authMiddleware != nil {
				eventsGroup.Use(authMiddleware)
			}
			if rule, ok := rateLimitRule(deps, "events_ip", deps.Config.RateLimit.EventsMaxAttempts); ok {
				eventsGroup.Use(deps.RateLimiter.RateLimit(rule))
			}
			handlers.NewEventsHandler(deps.Services.Events).RegisterRoutes(eventsGroup)
		}

		var sessionHandler *handlers.SessionHandler
		if deps.Services.Sessions != nil {
			sessionHandler = handlers.NewSessionHandler(deps.Services.Sessions, deps.Repositories.Sessions, adminRoles)
			sessionGroup := api.Group("/sessions")
			if authMiddleware != nil {
				sessionGroup.Use(authMiddleware)
			}
			if rule, ok := rateLimitRule(deps, "session_ip", deps.Config.RateLimit.SessionMaxAttempts); ok {
				sessionGroup.Use(deps.RateLimiter.RateLimit(rule))
			}
			sessionHandler.RegisterRoutes(sessionGroup)
		}

		if deps.Services.Policies != nil {
			policyGroup := api.Group("/policies")
			if authMiddleware != nil {
				policyGroup.Use(authMiddleware)
			}
			policyGroup.Use(requireAdmin)
			handlers.NewPolicyHandler(deps.Services.Policies, deps.Repositories.Policies).RegisterRoutes(policyGroup)
		}

		tenantGroup := api.Group("/tenants")
		if authMiddleware != nil {
			tenantGroup.Use(authMiddleware)
		}

		if deps.Services.Tenants != nil {
			handlers.NewTenantHandler(deps.Services.Tenants, deps.Repositories.Tenants).RegisterRoutes(tenantGroup, requireAdmin, requireTenantAdmin)
		}

		if deps.Services.Audit != nil {
			handlers.NewAuditHandler(deps.Services.Audit, deps.Repositories.Audit).RegisterRoutes(tenantGroup, requireTenantAdmin)
		}

		if sessionHandler != nil {
			tenantGroup.GET("/:id/sessions", requireTenantAdmin, sessionHandler.ListForTenant)
			tenantGroup.DELETE("/:id/sessions", requireTenantAdmin, sessionHandler.RevokeForTenant)
		}
	}

	return r
}

func rateLimitRule(deps Dependencies, name string, limit int) (middleware.RateLimitRule, bool) {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return middleware.RateLimitRule{}, false
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}, true
}
