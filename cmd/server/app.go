package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/vkalinin/devagent-api/internal/capability"
	"github.com/vkalinin/devagent-api/internal/config"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/platform/gemini"
	"github.com/vkalinin/devagent-api/internal/platform/githost"
	"github.com/vkalinin/devagent-api/internal/platform/postgres"
	"github.com/vkalinin/devagent-api/internal/service"
	"github.com/vkalinin/devagent-api/internal/service/auth"
	"github.com/vkalinin/devagent-api/internal/store"
	"github.com/vkalinin/devagent-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	userStore    store.UserStore
	taskStore    store.TaskStore
	projectStore store.ProjectStore
	messageStore store.MessageStore

	// Services
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	taskService      service.TaskService
	messageService   service.MessageService
	projectService   service.ProjectService

	// Background processing
	executor *task.Executor
}

// newApplication wires up every application dependency and starts the task
// executor. Callers own the returned application's lifecycle and must call
// cleanup on shutdown.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.passwordVerifier = auth.NewBcryptVerifier()

	passwordHasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	app.userStore = postgres.NewPostgresUserStore(db, passwordHasher, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.projectStore = postgres.NewPostgresProjectStore(db, logger)
	app.messageStore = postgres.NewPostgresMessageStore(db, logger)

	router, err := setupProviders(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app.executor = task.NewExecutor(
		postgres.NewPostgresTaskStore(db, logger),
		router,
		task.ExecutorConfig{
			WorkerCount:        cfg.Executor.WorkerCount,
			QueueSize:          cfg.Executor.QueueSize,
			MaxRetries:         cfg.Executor.MaxRetries,
			BackoffBase:        time.Duration(cfg.Executor.BackoffBaseSeconds) * time.Second,
			InvokeTimeout:      time.Duration(cfg.Executor.InvokeTimeoutSeconds) * time.Second,
			StuckTaskAge:       time.Duration(cfg.Executor.StuckTaskAgeMinutes) * time.Minute,
			StuckCheckInterval: time.Duration(cfg.Executor.StuckCheckEveryMinutes) * time.Minute,
		},
		logger,
	)
	if err := app.executor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start task executor: %w", err)
	}

	app.taskService, err = service.NewTaskService(app.taskStore, app.projectStore, app.executor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.messageService, err = service.NewMessageService(app.messageStore, app.taskStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create message service: %w", err)
	}

	app.projectService, err = service.NewProjectService(app.projectStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create project service: %w", err)
	}

	logger.Info("application initialized")
	return app, nil
}

// setupProviders builds the capability router backing the executor. The LLM
// provider is mandatory; the git provider is registered only when a GitHub
// token is configured, so git-op tasks fail as unsupported without one.
func setupProviders(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*capability.Router, error) {
	router := capability.NewRouter()

	llmProvider, err := gemini.NewProvider(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	router.Register(llmProvider,
		domain.CapabilityAnalyze,
		domain.CapabilityGenerate,
		domain.CapabilityFix)

	if cfg.Git.GitHubToken != "" {
		gitProvider, err := githost.NewProvider(ctx, cfg.Git, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git provider: %w", err)
		}
		router.Register(gitProvider, domain.CapabilityGitOp)
	} else {
		logger.Warn("no github token configured, git-op tasks will be rejected")
	}

	return router, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()
	return app.startHTTPServer(ctx, router)
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.executor != nil {
		app.executor.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
