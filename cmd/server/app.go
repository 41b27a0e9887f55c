package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/genrelay/internal/config"
	"github.com/phrazzld/genrelay/internal/enhance"
	"github.com/phrazzld/genrelay/internal/events"
	"github.com/phrazzld/genrelay/internal/generation"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/platform/kie"
	"github.com/phrazzld/genrelay/internal/platform/postgres"
	"github.com/phrazzld/genrelay/internal/service"
	"github.com/phrazzld/genrelay/internal/service/auth"
	"github.com/phrazzld/genrelay/internal/store"
	"github.com/phrazzld/genrelay/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	credentialStore store.CredentialStore
	generationStore store.GenerationStore

	upstream  *kie.Client
	cache     *keypool.CreditCache
	keys      *keypool.Manager
	refresher *keypool.Refresher

	tokens            auth.TokenService
	generations       *generation.Service
	credentialService service.CredentialService

	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.TaskRunner
}

// newApplication wires every component. The refresher and the task runner
// are started here; cleanup stops them.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.tokens, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize admin token service: %w", err)
	}

	app.credentialStore = postgres.NewPostgresCredentialStore(db, logger)
	app.generationStore = postgres.NewPostgresGenerationStore(db, logger)

	app.upstream = kie.NewClient(cfg.Provider.BaseURL, cfg.Provider.RequestTimeout())

	app.cache = keypool.NewCreditCache(cfg.KeyPool.CacheTTL())
	var managerOpts []keypool.ManagerOption
	if cfg.Provider.FallbackAPIKey != "" {
		managerOpts = append(managerOpts, keypool.WithFallbackSecret(cfg.Provider.FallbackAPIKey))
	}
	app.keys = keypool.NewManager(app.credentialStore, app.cache, app.upstream, logger, managerOpts...)
	app.refresher = keypool.NewRefresher(
		app.credentialStore,
		app.upstream,
		app.cache,
		cfg.KeyPool.RefreshInterval(),
		logger,
	)

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.generations = generation.NewService(
		app.generationStore,
		app.keys,
		app.upstream,
		generation.NewModelPolicies(cfg.Generation),
		app.eventEmitter,
		logger,
	)

	recovered, err := app.generations.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover interrupted enhancements: %w", err)
	}
	if recovered > 0 {
		logger.Warn("interrupted enhancements closed at startup", "count", recovered)
	}

	app.taskRunner, err = setupTaskRunner(app)
	if err != nil {
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	app.credentialService, err = service.NewCredentialService(
		app.credentialStore,
		app.cache,
		logger,
		service.WithDB(db),
		service.WithOracle(app.upstream),
		service.WithRefresher(app.refresher),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential service: %w", err)
	}

	if err := app.refresher.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start credit refresher: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setupTaskRunner builds the enhancement pipeline, starts the runner that
// executes it and subscribes it to enhancement events.
func setupTaskRunner(app *application) (*task.TaskRunner, error) {
	cfg := app.config.Enhance

	pipeline := enhance.NewPipeline(
		enhance.NewLocalArtifactStore(
			&http.Client{Timeout: cfg.Timeout()},
			cfg.PublicDir,
			cfg.PublicBaseURL,
			enhance.WithMaxDownloadBytes(cfg.MaxArtifactBytes()),
		),
		&enhance.FFmpegTransformer{Path: cfg.FFmpegPath},
		app.generations,
		enhance.PipelineConfig{
			WorkDir: cfg.WorkDir,
			Timeout: cfg.Timeout(),
		},
		app.logger,
	)

	runner := task.NewTaskRunner(task.TaskRunnerConfig{
		WorkerCount: cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
	}, app.logger)
	if err := runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	app.eventEmitter.RegisterHandler(
		events.TypeEnhancementRequested,
		task.NewEnhancementEventHandler(runner, pipeline, app.logger),
	)

	return runner, nil
}

// Run serves HTTP until ctx is cancelled and then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup stops background work before the database goes away. Queued
// enhancements get until ctx is done to drain.
func (app *application) cleanup(ctx context.Context) {
	if app.refresher != nil {
		app.refresher.Stop()
	}

	if app.taskRunner != nil {
		if err := app.taskRunner.Stop(ctx); err != nil {
			app.logger.Error("enhancement workers did not drain", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
