package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
	kafkainfra "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/kafka"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/logger"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/objectstore"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/process"
	redisinfra "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/redis"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/security"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/docstore"
	transportgrpc "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/grpc"
	grpcinterceptors "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/grpc/interceptors"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/routes"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

const metricsNamespace = "smartlock"

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	scheduler  *usecase.CleanupScheduler
	jobs       *usecase.JobSupervisor
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer, metricsNamespace)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	if cfg.Redis.Enabled {
		redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.redis = redisClient
	}

	backend, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	repos := docstore.NewRepositories(backend.documents, cfg.Storage.OperationTimeout)

	audit := usecase.NewAuditService(domain.ParseAuditMode(cfg.Audit.Mode), repos.Audit, log, metrics)
	events := a.eventPublisher()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	tokens, err := usecase.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}
	guard := usecase.NewBruteForceGuard(cfg.BruteForce.MaxAttempts, cfg.BruteForce.Window)

	authService, err := usecase.NewAuthService(cfg.Auth, hasher, repos.Locks, backend.sessions, tokens, guard, audit, log)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	tempCodes, err := usecase.NewTempCodeService(cfg.TempCodes, repos.TempCodes, repos.Activity, audit, metrics, log)
	if err != nil {
		return fmt.Errorf("init temp code service: %w", err)
	}
	tempCodes.WithEvents(events)

	lockService := usecase.NewLockService(repos.Locks, repos.Activity, repos.PendingUsers, hasher, security.NewLockPasswordPolicy(), audit, log).
		WithEvents(events)
	if cfg.ObjectStore.Bucket != "" {
		images, err := objectstore.NewGCSImageStore(ctx, cfg.ObjectStore, log)
		if err != nil {
			return fmt.Errorf("init face image store: %w", err)
		}
		lockService.WithFaceImages(images)
	} else {
		log.Info("object store bucket not configured, face images are kept on lock deletion")
	}

	cleanup := usecase.NewCleanupService(
		repos.Locks, repos.TempCodes, repos.Activity, repos.Audit,
		domain.ParseAuditMode(cfg.Audit.Mode).Persistent(),
		usecase.CleanupPolicyFromConfig(cfg.Cleanup), metrics, log,
	)
	if cfg.Cleanup.Enabled {
		loc, err := time.LoadLocation(displayTimezone(cfg.TempCodes))
		if err != nil {
			return fmt.Errorf("load cleanup timezone: %w", err)
		}
		a.scheduler = usecase.NewCleanupScheduler(cleanup, cfg.Cleanup.RunHour, cfg.Cleanup.Interval, loc, log)
	}

	a.jobs = usecase.NewJobSupervisor(jobSpecs(cfg.Jobs), process.NewExecLauncher(log), cfg.Jobs.StopTimeout, audit, metrics, log)

	rateLimiter := middleware.NewRateLimiter(backend.rateLimits, log).WithMetrics(metrics)
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: metricsNamespace})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Services: routes.ServiceSet{
			Auth:      authService,
			TempCodes: tempCodes,
			Locks:     lockService,
			Jobs:      a.jobs,
			Audit:     audit,
			Cleanup:   cleanup,
		},
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	if cfg.GRPC.Enabled {
		grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Namespace: metricsNamespace})
		if err != nil {
			return fmt.Errorf("init grpc metrics: %w", err)
		}
		a.grpcServer = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Logger:  log,
			Metrics: grpcMetrics,
			Tracing: &grpcinterceptors.TracingOptions{TracerProvider: tracer.TracerProvider()},
		})
		a.grpcAddr = fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	}

	return nil
}

// Handler exposes the HTTP engine, mostly for tests.
func (a *Application) Handler() http.Handler {
	return a.engine
}

func (a *Application) eventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

func jobSpecs(cfg config.JobsSettings) []port.JobSpec {
	return []port.JobSpec{
		{Name: "recognizer", Command: cfg.Recognizer.Command, Args: cfg.Recognizer.Args, WorkDir: cfg.Recognizer.WorkDir},
		{Name: "trainer", Command: cfg.Trainer.Command, Args: cfg.Trainer.Args, WorkDir: cfg.Trainer.WorkDir},
	}
}

func displayTimezone(cfg config.TempCodeSettings) string {
	if cfg.DisplayTimezone == "" {
		return "UTC"
	}
	return cfg.DisplayTimezone
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.closeResources(context.Background())

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil && a.grpcAddr != "" {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("gRPC server panicked", zap.Any("panic", r))
					grpcErrCh <- fmt.Errorf("grpc server panicked: %v", r)
				}
			}()
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				a.logger.Error("gRPC server error", zap.Error(err))
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
		a.grpcServer.SetServing(true)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting smartlock API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Backend),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		if a.grpcServer != nil {
			a.grpcServer.SetServing(false)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}

// closeResources stops background work before releasing connections so
// in-flight cleanup and job transitions can still reach the store.
func (a *Application) closeResources(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.jobs != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		a.jobs.Shutdown(stopCtx)
		cancel()
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
