package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finmate/finance-tracker-go/internal/config"
	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/handler"
	"github.com/finmate/finance-tracker-go/internal/infra/cache"
	"github.com/finmate/finance-tracker-go/internal/infra/clock"
	"github.com/finmate/finance-tracker-go/internal/infra/memstore"
	"github.com/finmate/finance-tracker-go/internal/infra/mongostore"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"
	"github.com/finmate/finance-tracker-go/internal/port"
	"github.com/finmate/finance-tracker-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid ROLLOVER_TIMEZONE", zap.String("timezone", cfg.RolloverTimezone), zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("rollover_cron", cfg.RolloverCron),
		zap.String("rollover_timezone", loc.String()),
		zap.Duration("rollover_timeout", cfg.RolloverTimeout),
		zap.Int("rollover_concurrency", cfg.RolloverConcurrency),
		zap.Bool("scheduler_enabled", cfg.SchedulerEnabled),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("history_cache_ttl", cfg.HistoryCacheTTL),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "finance-tracker")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	var store port.UserStore
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		store = memstore.New()
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoConnectWait)
		mongo, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection,
			resilience.NewCircuitBreaker("mongodb"), metrics, logger)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongo.Close(ctx); err != nil {
				logger.Warn("mongodb disconnect failed", zap.Error(err))
			}
		}()
		store = mongo
	default:
		logger.Fatal("unknown STORE_BACKEND", zap.String("backend", cfg.StoreBackend))
	}

	// --- Cache ---
	historyCache := cache.New[[]domain.MonthRecord](cfg.HistoryCacheTTL)
	defer historyCache.Close()

	// --- Services ---
	clk := clock.NewSystem(loc)
	locks := service.NewUserLocks()

	milestoneSvc := service.NewMilestoneService(store, locks, clk, resilienceCfg, logger)
	rolloverSvc := service.NewRolloverService(
		store,
		milestoneSvc,
		clk,
		locks,
		resilience.NewBulkhead(cfg.MaxConcurrency),
		historyCache,
		service.RolloverConfig{Timeout: cfg.RolloverTimeout, Retry: resilienceCfg},
		metrics,
		logger,
	)
	financeSvc := service.NewFinanceService(store, clk, locks, resilienceCfg, metrics, logger)

	scheduler, err := service.NewScheduler(store, rolloverSvc, clk, service.SchedulerConfig{
		Spec:        cfg.RolloverCron,
		Location:    loc,
		Concurrency: cfg.RolloverConcurrency,
	}, metrics, logger)
	if err != nil {
		logger.Fatal("failed to create rollover scheduler", zap.Error(err))
	}
	if cfg.SchedulerEnabled {
		scheduler.Start()
	} else {
		logger.Warn("rollover scheduler disabled; only operator-triggered runs will happen")
	}

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Store:      store,
		Clock:      clk,
		Finance:    financeSvc,
		Rollover:   rolloverSvc,
		Milestones: milestoneSvc,
		Scheduler:  scheduler,
		Tokens:     service.NewTokenVerifier(cfg.JWTSecret),
		Metrics:    metrics,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // admin batch runs are synchronous
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if cfg.SchedulerEnabled {
		scheduler.Stop(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
