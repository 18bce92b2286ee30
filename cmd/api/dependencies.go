package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/echo-import/internal/domain/categorization"
	importhandler "github.com/FACorreiaa/echo-import/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/echo-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/echo-import/internal/domain/import/service"

	"github.com/FACorreiaa/echo-import/pkg/config"
	"github.com/FACorreiaa/echo-import/pkg/cron"
	"github.com/FACorreiaa/echo-import/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo      importrepo.ImportRepository
	CorrectionStore categorization.KeyValueStore

	// Services
	Metrics   *importservice.Metrics
	Registry  *importhandler.Registry
	Scheduler *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler

	PromRegistry *prometheus.Registry
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)

	switch d.Config.Import.CorrectionStore {
	case config.CorrectionStoreMemory:
		d.CorrectionStore = categorization.NewMemoryStore()
	default:
		d.CorrectionStore = categorization.NewPostgresStore(d.DB.Pool)
	}

	d.Logger.Info("repositories initialized",
		slog.String("correction_store", d.Config.Import.CorrectionStore),
	)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.PromRegistry = prometheus.NewRegistry()
	d.PromRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if d.Config.Observability.MetricsEnabled {
		d.Metrics = importservice.NewMetrics(d.PromRegistry)
	}

	d.Registry = importhandler.NewRegistry(d.ImportRepo, d.CorrectionStore, d.Logger).
		WithMetrics(d.Metrics).
		WithCurrency(d.Config.Import.DisplayCurrency)

	// Correction refresh keeps classifiers in step with edits made by other instances
	if d.Config.Import.CorrectionRefreshCron != "" {
		d.Scheduler = cron.NewScheduler(d.Registry, d.Config.Import.CorrectionRefreshCron, d.Logger).
			WithSessionEviction(d.Registry, d.Config.Import.SessionIdleTimeout)
	}

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.Registry, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
