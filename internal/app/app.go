package app

import (
	"context"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/config"
	"raisloader/internal/database"
	"raisloader/internal/jobs"
	"raisloader/internal/repositories"
	"raisloader/internal/services"
)

type App struct {
	Config   config.Config
	Database *database.DB
	Repos    repositories.Repository
	Progress *services.ProgressStore

	// Pipeline services; only set after StartPipeline.
	Services services.Service
}

// New loads the configuration and the persisted progress. It does not contact
// the remote source or the destination, so status and clear work offline.
func New(ctx context.Context) (*App, error) {
	log := logger.New("app").Function("New")

	cfg, err := config.New()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	app := &App{Config: cfg}

	if cfg.ProgressBackend == config.ProgressBackendPostgres {
		db, err := database.New(cfg.ProgressDSN)
		if err != nil {
			return &App{}, log.Err("failed to create database", err)
		}
		app.Database = &db
	}

	app.Repos = repositories.New(cfg, app.Database)
	app.Progress = services.NewProgressStore(app.Repos.Progress)

	if err := app.Progress.Load(ctx); err != nil {
		_ = app.Close()
		return &App{}, log.Err("failed to load progress", err)
	}

	return app, nil
}

// StartPipeline builds the services that reach the remote source and the destination.
func (a *App) StartPipeline(ctx context.Context) error {
	log := logger.New("app").Function("StartPipeline")

	svc, err := services.New(ctx, a.Config, a.Progress)
	if err != nil {
		return log.Err("failed to create pipeline services", err)
	}
	a.Services = svc

	if err := a.validate(); err != nil {
		return log.Err("failed to validate app", err)
	}
	return nil
}

// StartScheduler registers the watch-mode jobs and starts the scheduler.
func (a *App) StartScheduler(ctx context.Context) error {
	log := logger.New("app").Function("StartScheduler")

	if err := jobs.RegisterAllJobs(a.Services.Scheduler, a.Services); err != nil {
		return log.Err("failed to register jobs", err)
	}
	return a.Services.Scheduler.Start(ctx)
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")

	nilChecks := []any{
		a.Progress,
		a.Services.Orchestration,
		a.Services.Destination,
		a.Services.Listing,
		a.Services.Scheduler,
	}

	for _, check := range nilChecks {
		if check == nil {
			return log.ErrMsg("nil check failed")
		}
	}

	return nil
}

func (a *App) Close() (err error) {
	if a.Services.Scheduler != nil {
		if closeErr := a.Services.Scheduler.Stop(context.Background()); closeErr != nil {
			err = closeErr
		}
	}

	if closeErr := a.Services.Close(); closeErr != nil {
		err = closeErr
	}

	if a.Database != nil {
		if dbErr := a.Database.Close(); dbErr != nil {
			err = dbErr
		}
	}

	return err
}
