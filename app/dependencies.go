package app

import (
	"context"
	"fmt"
	"time"

	"github.com/serenova/aicore/config"
	"github.com/serenova/aicore/handlers"
	"github.com/serenova/aicore/repositories/postgres"
	"github.com/serenova/aicore/services/analytics"
	"github.com/serenova/aicore/services/audit"
	"github.com/serenova/aicore/services/budget"
	"github.com/serenova/aicore/services/cache"
	"github.com/serenova/aicore/services/chat"
	"github.com/serenova/aicore/services/orchestrator"
	"github.com/serenova/aicore/services/providers"
	"github.com/serenova/aicore/services/routing"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Domain services
	Registry     *providers.Registry
	Router       *routing.Router
	Cache        cache.Store
	Ledger       *budget.Ledger
	Sink         *audit.Sink
	Analytics    *analytics.Service
	Orchestrator *orchestrator.Orchestrator
	Chat         *chat.Service

	// cancel stops background workers started by the dependency graph
	cancel context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	registry, err := providers.NewRegistryFromConfig(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider registry: %w", err)
	}
	deps.Registry = registry
	if !cfg.Providers.AnyConfigured() {
		logger.Warn("no AI providers configured, chat requests will be rejected")
	}

	deps.Router = routing.NewRouter(registry)

	workerCtx, cancel := context.WithCancel(context.Background())
	deps.cancel = cancel

	switch cfg.Cache.Backend {
	case "memory":
		store := cache.NewMemoryStore(cfg.Cache.MaxSize, cfg.Cache.TTL)
		go store.StartCleanupWorker(workerCtx, time.Minute)
		deps.Cache = store
	default:
		deps.Cache = cache.NewPostgresStore(db.DB, cfg.Cache.TTL, logger)
	}

	deps.Ledger = budget.NewLedger(db.DB, logger)
	deps.Analytics = analytics.NewService(db.DB, logger)

	deps.Sink = audit.NewSink(db.DB, logger, audit.DefaultConfig())
	if err := deps.Sink.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start audit sink: %w", err)
	}

	deps.Orchestrator = orchestrator.New(registry, deps.Ledger, deps.Sink, logger, orchestrator.Config{
		TaskTimeout:    cfg.Orchestrator.TaskTimeout,
		MaxConcurrency: cfg.Orchestrator.MaxConcurrency,
	})

	deps.Chat = chat.NewService(
		deps.Router,
		registry,
		deps.Cache,
		deps.Ledger,
		deps.Sink,
		logger,
		chat.Config{
			MonthlyBudgetUSD: cfg.Budget.MonthlyUSD,
			BudgetHardLimit:  cfg.Budget.HardLimit,
		},
	)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Handlers builds the HTTP handler set over the service graph
func (d *Dependencies) Handlers() (*handlers.ChatHandler, *handlers.OrchestrateHandler, *handlers.StatsHandler, *handlers.HealthHandler) {
	return handlers.NewChatHandler(d.Chat, d.Logger),
		handlers.NewOrchestrateHandler(d.Orchestrator, d.Logger),
		handlers.NewStatsHandler(d.Analytics, d.Ledger, d.Config.Budget.MonthlyUSD, d.Logger),
		handlers.NewHealthHandler(d.DB.DB, d.Registry)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cancel != nil {
		d.cancel()
	}

	// Drain buffered audit events before the database goes away
	if d.Sink != nil {
		if err := d.Sink.Stop(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit sink: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
