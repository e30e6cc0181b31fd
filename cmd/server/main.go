package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/application/marketsync"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/cache"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/persistence"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/infrastructure/storage"
	"github.com/marketsync/backend/internal/infrastructure/telemetry"
	"github.com/marketsync/backend/internal/interfaces/http/handler"
	"github.com/marketsync/backend/internal/interfaces/http/middleware"
	"github.com/marketsync/backend/internal/interfaces/http/router"
)

//	@title			Marketplace Sync API
//	@version		1.0
//	@description	Shopee and Mercado Livre order and fee synchronization
//	@BasePath		/api/v1

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if _, err := config.LoadDotEnv(); err != nil {
		panic("Failed to load .env: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting marketplace sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, cfg.Telemetry, cfg.App.Name, version, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		_ = tracerProvider.Shutdown(context.Background())
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.NewDBTracingConfig(cfg.Telemetry, cfg.Database.DBName), log); err != nil {
		log.Fatal("Failed to enable database tracing", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	locker, closeLocker, err := cache.NewRenewalLockerFactory(cfg.Redis, cache.WithLogger(log)).Create()
	if err != nil {
		log.Fatal("Failed to create renewal locker", zap.Error(err))
	}
	defer func() {
		_ = closeLocker()
	}()

	archive, err := storage.NewPayloadArchive(&cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to create payload archive", zap.Error(err))
	}

	clock := ecommerce.SystemClock{}
	retry := retryConfig(cfg.Retry)

	shopee, err := ecommerce.NewShopeeClient(shopeeConfig(cfg.Shopee), retry, clock, log)
	if err != nil {
		log.Fatal("Failed to create Shopee client", zap.Error(err))
	}
	mercadoLivre, err := ecommerce.NewMercadoLivreClient(
		mercadoLivreConfig(cfg.MercadoLivre), retry,
		ecommerce.NewBillingAggregator(ecommerce.DefaultFeeBuckets()), clock, log,
	)
	if err != nil {
		log.Fatal("Failed to create Mercado Livre client", zap.Error(err))
	}

	// Sync engine
	store := persistence.NewGormRecordStore(db.DB)
	credentials := marketsync.NewCredentialStore(store, clock, log)
	reconciler := marketsync.NewReconciler(store, archive, clock, log)
	selector := marketsync.NewFinancialSelector(store)

	var purger *marketsync.RetentionPurger
	if cfg.Sync.RetentionEnabled {
		purger = marketsync.NewRetentionPurger(store, cfg.Sync.RetentionDays, clock, log)
	}

	tokens := marketsync.NewTokenManager(credentials,
		map[integration.Marketplace]integration.TokenRenewer{
			integration.MarketplaceShopee:       shopee,
			integration.MarketplaceMercadoLivre: mercadoLivre,
		},
		locker, cfg.Sync.RenewalMargin, clock, log,
	)
	orchestrator := marketsync.NewOrchestrator(credentials, tokens,
		[]marketsync.Pipeline{
			marketsync.NewShopeePipeline(shopee, reconciler, selector, cfg.Sync, clock, log),
			marketsync.NewMercadoLivrePipeline(mercadoLivre, reconciler, selector, purger, cfg.Sync, clock, log),
		},
		marketsync.OrchestratorConfigFrom(cfg.Sync, cfg.Schedule), clock, log,
	)
	stats := marketsync.NewStatsService(store, credentials, selector)

	// Background jobs
	var (
		sched   *scheduler.Scheduler
		trigger *scheduler.IntervalTrigger
	)
	if cfg.Schedule.Enabled {
		sched, err = scheduler.NewScheduler(scheduler.ConfigFromSchedule(cfg.Schedule), orchestrator, clock, log)
		if err != nil {
			log.Fatal("Failed to create sync scheduler", zap.Error(err))
		}
		if err := sched.Start(rootCtx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		trigger = scheduler.NewIntervalTrigger(
			scheduler.SchedulesFromConfig(cfg.Schedule),
			integration.WindowPreset(cfg.Schedule.DefaultWindow),
			sched, clock, log,
		)
		if err := trigger.Start(rootCtx); err != nil {
			log.Fatal("Failed to start sync triggers", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.App.Name),
		middleware.TracingAttributes(),
		logger.GinMiddleware(log, "/health"),
		logger.Recovery(log),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	var (
		queue  handler.JobQueue
		status handler.SchedulerStatus
	)
	if sched != nil {
		queue, status = sched, sched
	}

	r := router.NewRouter(engine)
	r.RegisterRoot(handler.NewSystemHandler(cfg.App.Name, version, db, status))
	r.Register(handler.NewSyncHandler(orchestrator, queue, log))
	r.Register(handler.NewStatsHandler(stats, clock))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if trigger != nil {
		if err := trigger.Stop(ctx); err != nil {
			log.Error("Error stopping sync triggers", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.Error("Error stopping sync scheduler", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

func retryConfig(cfg config.RetryConfig) ecommerce.RetryConfig {
	retry := ecommerce.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.ForbiddenBaseDelay > 0 {
		retry.ForbiddenBaseDelay = cfg.ForbiddenBaseDelay
	}
	if cfg.RateLimitCooldown > 0 {
		retry.RateLimitCooldown = cfg.RateLimitCooldown
	}
	return retry
}

func shopeeConfig(cfg config.ShopeeConfig) *ecommerce.ShopeeConfig {
	c := ecommerce.NewShopeeConfig()
	c.APIBaseURL = cfg.APIBaseURL
	c.IsSandbox = cfg.IsSandbox
	if cfg.TimeoutSeconds > 0 {
		c.TimeoutSeconds = cfg.TimeoutSeconds
	}
	return c
}

func mercadoLivreConfig(cfg config.MercadoLivreConfig) *ecommerce.MercadoLivreConfig {
	c := ecommerce.NewMercadoLivreConfig()
	if cfg.APIBaseURL != "" {
		c.APIBaseURL = cfg.APIBaseURL
	}
	if cfg.TimeoutSeconds > 0 {
		c.TimeoutSeconds = cfg.TimeoutSeconds
	}
	return c
}
