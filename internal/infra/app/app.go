package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/config"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/database"
	kafkainfra "github.com/byronwade/thorbis.com-sub010/internal/infra/kafka"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/logger"
	redisinfra "github.com/byronwade/thorbis.com-sub010/internal/infra/redis"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/security"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/telemetry"
	postgresrepo "github.com/byronwade/thorbis.com-sub010/internal/repository/postgres"
	redisrepo "github.com/byronwade/thorbis.com-sub010/internal/repository/redis"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/routes"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

type Application struct {
	cfg         *config.AppConfig
	engine      *gin.Engine
	logger      *zap.Logger
	pool        *pgxpool.Pool
	redis       *redisinfra.Client
	producer    *kafkainfra.Producer
	revocations *kafkainfra.RevocationListener
	audit       *usecase.AuditRecorder
	policies    *usecase.PolicyStore
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer, serviceName)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	auditRecorder := usecase.NewAuditRecorder(repos.Audit, eventPublisher, usecase.AuditRecorderConfig{
		BufferSize:   cfg.Audit.BufferSize,
		RetryInitial: cfg.Audit.RetryInitial,
		RetryMax:     cfg.Audit.RetryMax,
		SyncTimeout:  cfg.Audit.SyncTimeout,
	}, log).WithGauges(
		func(depth int) { metrics.AuditBufferDepth.Set(float64(depth)) },
		func() { metrics.AuditRetriesTotal.Inc() },
	)

	sessionCache := redisrepo.NewSessionCacheRepository(redisClient.Client(), cfg.Redis.RevocationPrefix)
	revocationTTL := cfg.Redis.RevocationTTL
	if revocationTTL <= 0 {
		revocationTTL = 24 * time.Hour
	}

	sessionService := usecase.NewSessionService(repos.Sessions, auditRecorder, eventPublisher, usecase.SessionPolicy{
		DefaultTTL:         cfg.Session.DefaultTTL,
		DefaultIdleTimeout: cfg.Session.DefaultIdleTimeout,
		IdleTimeouts:       cfg.Session.IdleTimeouts,
	}, log).WithSessionCache(sessionCache, revocationTTL)

	policyStore := usecase.NewPolicyStore(repos.Policies, eventPublisher, log)
	if err := policyStore.Load(ctx); err != nil {
		// The engine fails closed without a snapshot; starting anyway lets
		// an operator publish the first policy through the admin surface.
		log.Warn("initial policy load failed, evaluator denies until a policy is published", zap.Error(err))
	}

	evaluator := usecase.NewAccessEvaluator(policyStore, sessionService, repos.Tenants, auditRecorder, usecase.EvaluatorConfig{
		SyncSensitivityThreshold: domain.SensitivityLevel(cfg.Audit.SyncSensitivityThreshold),
	}, log).WithDecisionObserver(func(outcome domain.DecisionOutcome, reason domain.ReasonCode, elapsed time.Duration) {
		metrics.ObserveDecision(string(outcome), string(reason), elapsed.Seconds())
	})

	keyProvider, err := security.NewFileKeyProvider(cfg.Auth.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	verifier := security.NewTokenVerifier(keyProvider, cfg.Auth.Issuer, cfg.Auth.Audience)

	var revocations *kafkainfra.RevocationListener
	if producer != nil && cfg.Kafka.ConsumerGroup != "" {
		consumer := kafkainfra.NewRevocationConsumer(sessionService, log)
		revocations, err = kafkainfra.NewRevocationListener(cfg.Kafka, consumer, log)
		if err != nil {
			// Peer revocations still land through the shared cache marker;
			// the listener only narrows the propagation window.
			log.Warn("failed to init revocation listener", zap.Error(err))
			revocations = nil
		}
	}

	resolver := usecase.NewPrincipalResolver(verifier, repos.Principals, sessionService, log)
	tenantService := usecase.NewTenantService(repos.Tenants, sessionService, eventPublisher, log)
	eventService := usecase.NewEventService(auditRecorder, eventPublisher, log)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitPrefix := cfg.Redis.RateLimitPrefix
	if rateLimitPrefix == "" {
		rateLimitPrefix = "access:rate-limit"
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: rateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Evaluator: evaluator,
			Sessions:  sessionService,
			Policies:  policyStore,
			Audit:     auditRecorder,
			Events:    eventService,
			Tenants:   tenantService,
			Resolver:  resolver,
		},
		Repositories: routes.RepositorySet{
			Sessions: repos.Sessions,
			Policies: repos.Policies,
			Audit:    repos.Audit,
			Tenants:  repos.Tenants,
		},
	})

	return &Application{
		cfg:         cfg,
		engine:      engine,
		logger:      log,
		pool:        pool,
		redis:       redisClient,
		producer:    producer,
		revocations: revocations,
		audit:       auditRecorder,
		policies:    policyStore,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	// Drain the audit buffer before the stores go away.
	defer a.audit.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting access engine API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	if a.revocations != nil {
		defer func() {
			_ = a.revocations.Close()
		}()
		go func() {
			if err := a.revocations.Run(ctx); err != nil {
				a.logger.Error("revocation listener stopped", zap.Error(err))
			}
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
