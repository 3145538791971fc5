package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/queue"
	"github.com/ternarybob/colligo/internal/scheduler"
	"github.com/ternarybob/colligo/internal/scraper"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/maintenance"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *storagebadger.Manager
	EventService   interfaces.EventService
	Broker         interfaces.TaskBroker
	Scraper        interfaces.Scraper
	Admitter       *scheduler.Admitter
	WorkerPool     *scheduler.WorkerPool
	Maintenance    *maintenance.Service

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	WSHandler  *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := storagebadger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	broker, err := queue.NewBroker(storageManager.DB(), logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize task broker: %w", err)
	}
	app.Broker = broker

	app.EventService = events.NewService(logger)
	app.Scraper = scraper.New(&cfg.Scraper, logger)

	articles := storageManager.ArticleStorage()
	jobs := storageManager.JobStorage()

	app.Admitter = scheduler.NewAdmitter(articles, jobs, broker, app.EventService, logger)

	app.WorkerPool = scheduler.NewWorkerPool(articles, jobs, broker, app.EventService, app.Scraper, scheduler.WorkerConfig{
		Workers:        cfg.Queue.Workers,
		PollInterval:   cfg.Queue.PollIntervalDuration(),
		MaxRetries:     cfg.Queue.MaxRetryAttempts,
		RetryBaseDelay: cfg.Queue.RetryBaseDelayDuration(),
		MaxRetryDelay:  cfg.Queue.MaxRetryDelayDuration(),
	}, logger)
	app.WorkerPool.Start()

	if cfg.Maintenance.Enabled {
		app.Maintenance = maintenance.NewService(articles, jobs, broker, cfg.Maintenance.StuckThresholdDuration(), logger)
		if err := app.Maintenance.Start(cfg.Maintenance.Schedule); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to start maintenance service: %w", err)
		}
	}

	// WSHandler subscribes to job updates at construction time
	app.APIHandler = handlers.NewAPIHandler(logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, &cfg.WebSocket, logger)
	app.JobHandler = handlers.NewJobHandler(app.Admitter, articles, jobs, broker, app.EventService, logger)

	logger.Info().
		Int("workers", cfg.Queue.Workers).
		Msg("Application initialization complete")

	return app, nil
}

// Close shuts components down in reverse dependency order
func (a *App) Close() error {
	if a.Maintenance != nil {
		a.Maintenance.Stop()
	}

	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
		a.Logger.Info().Msg("Worker pool stopped")
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close task broker")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
