package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brandsync/brandsync-api/internal/api"
	"github.com/brandsync/brandsync-api/internal/config"
	"github.com/brandsync/brandsync-api/internal/events"
	"github.com/brandsync/brandsync-api/internal/platform/backend"
	"github.com/brandsync/brandsync-api/internal/platform/postgres"
	"github.com/brandsync/brandsync-api/internal/task"
)

// application holds the composed dependency graph.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	db        *sql.DB
	store     *task.Store
	scheduler *task.PollScheduler
	janitor   *task.Janitor
	router    http.Handler
}

// newApplication wires the full dependency graph: database, stores,
// backend client, scheduler, janitor and HTTP routes. Polling resumes
// from the persisted snapshot before the server starts accepting
// requests.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	if err := applyMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	kv := postgres.NewPostgresKV(db)

	storeConfig := task.DefaultStoreConfig()
	if cfg.Poller.HistoryLimit > 0 {
		storeConfig.HistoryLimit = cfg.Poller.HistoryLimit
	}
	store := task.NewStore(kv, storeConfig, logger)

	backendClient := backend.NewClient(cfg.Backend, logger)
	emitter := events.NewInMemoryEventEmitter(logger)

	schedulerConfig := task.DefaultSchedulerConfig()
	if cfg.Poller.IntervalSeconds > 0 {
		schedulerConfig.Interval = cfg.Poller.Interval()
	}
	if cfg.Poller.MaxAttempts > 0 {
		schedulerConfig.MaxAttempts = cfg.Poller.MaxAttempts
	}
	if cfg.Poller.StuckTimeoutMinutes > 0 {
		schedulerConfig.StuckTimeout = cfg.Poller.StuckTimeout()
	}

	scheduler := task.NewPollScheduler(store, backendClient, emitter, task.Callbacks{}, schedulerConfig, logger)
	scheduler.ResumePolling(store.LoadTasks(context.Background()))

	janitor := task.NewJanitor(store, cfg.Poller.CleanupSchedule, logger)
	if err := janitor.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task janitor: %w", err)
	}

	taskHandler := api.NewTaskHandler(store, scheduler, backendClient, logger)
	opsHandler := api.NewOpsHandler(scheduler, nil, logger)

	return &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		store:     store,
		scheduler: scheduler,
		janitor:   janitor,
		router:    api.NewRouter(taskHandler, opsHandler),
	}, nil
}

// run starts the HTTP server and blocks until shutdown.
func (app *application) run() error {
	return app.startHTTPServer(context.Background(), app.router)
}

// cleanup releases resources in reverse construction order.
func (app *application) cleanup() {
	app.scheduler.StopAllPolling()
	app.janitor.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}
