// Package bootstrap wires configuration, storage, the worker and the HTTP
// API into one process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"transcriptiond/internal/config"
	"transcriptiond/internal/diagnostics"
	"transcriptiond/internal/domain"
	"transcriptiond/internal/export"
	"transcriptiond/internal/ingest"
	"transcriptiond/internal/intake"
	"transcriptiond/internal/jobs"
	"transcriptiond/internal/logging"
	"transcriptiond/internal/notify"
	"transcriptiond/internal/server"
	"transcriptiond/internal/store"
	"transcriptiond/internal/transcribe"
	"transcriptiond/internal/uploads"
)

// StopTimeout bounds how long shutdown waits for an in-flight job.
const StopTimeout = 30 * time.Second

// App holds every long-lived component of the service.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Settings *config.Service
	Store    store.Store
	Events   *jobs.EventBus
	Worker   *jobs.Worker
	Intake   *intake.Service
	Export   *export.Service
	Checker  *diagnostics.Checker
	Notifier *notify.Telegram
	Cleaner  *uploads.Cleaner

	level      *slog.LevelVar
	backendErr error
}

// New opens the job store and builds all components. level, when not
// nil, follows log_level from the effective settings. A backend that
// cannot be built leaves Worker nil; RunWorker and Serve then return the
// build error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{cfg.DataDir, cfg.UploadsDir, cfg.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Settings: config.NewService(config.NewJSONStore(cfg.SettingsPath), logger),
		Events:   jobs.NewEventBus(1000),
		Checker:  diagnostics.NewChecker(),
		level:    level,
	}
	a.Settings.OnChange = a.applyLogLevel
	a.applyLogLevel(a.Settings.Effective())

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	a.Store = db

	a.Notifier = notify.NewTelegram(a.telegramConfig, logger)
	a.Cleaner = uploads.NewCleaner(cfg.UploadsDir, logger)
	a.Intake = intake.NewService(db, cfg.UploadsDir, a.Events, logger)
	a.Export = export.NewService(db, logger)

	backend, err := transcribe.New(cfg.Backend, transcribe.Deps{
		FFmpegPath:   cfg.FFmpegPath,
		WhisperPath:  cfg.WhisperPath,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		Settings:     a.Settings.Effective,
		Logger:       logger,
	})
	if err != nil {
		// Only the worker needs a backend.
		logger.Warn("transcription backend unavailable", "backend", cfg.Backend, "error", err)
		a.backendErr = fmt.Errorf("transcription backend: %w", err)
		return a, nil
	}

	a.Worker, err = jobs.NewWorker(db, jobs.Options{
		ResultsDir:   cfg.ResultsDir,
		PollInterval: cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
		Transcriber:  backend,
		Notifier:     a.Notifier,
		Cleanup:      a.Cleaner,
		Events:       a.Events,
		Logger:       logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) startWorker() error {
	if a.backendErr != nil {
		return a.backendErr
	}
	return a.Worker.Start()
}

// telegramConfig resolves the delivery target on every call so settings
// edits apply to the next job.
func (a *App) telegramConfig() notify.TelegramConfig {
	raw, err := a.Settings.Store().LoadRaw()
	if err != nil {
		a.Logger.Warn("failed to read settings for telegram", "error", err)
	}
	return notify.ResolveTelegram(os.Getenv, raw)
}

func (a *App) applyLogLevel(settings domain.Settings) {
	if a.level == nil {
		return
	}
	level, ok := logging.ParseLevel(settings.LogLevel)
	if !ok {
		a.Logger.Warn("unknown log level, using INFO", "log_level", settings.LogLevel)
	}
	a.level.Set(level)
}

// Diagnostics runs the environment checks against the current settings.
func (a *App) Diagnostics(ctx context.Context) domain.DiagnosticReport {
	return a.Checker.Run(ctx, diagnostics.Inputs{
		Backend:      a.Config.Backend,
		FFmpegPath:   a.Config.FFmpegPath,
		WhisperPath:  a.Config.WhisperPath,
		OpenAIAPIKey: a.Config.OpenAIAPIKey,
		Settings:     a.Settings.Effective(),
		UploadsDir:   a.Config.UploadsDir,
		ResultsDir:   a.Config.ResultsDir,
		Telegram:     a.telegramConfig(),
		Store:        a.Store,
	})
}

// RunWorker processes jobs until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	if err := a.startWorker(); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Worker.Stop(StopTimeout)
}

// Serve runs the worker, the HTTP API and, when configured, the inbox
// watcher until ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.startWorker(); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	running := 1
	srv := server.New(a.Config.Addr, server.Deps{
		Jobs:        a.Store,
		Intake:      a.Intake,
		Export:      a.Export,
		Worker:      a.Worker,
		Events:      a.Events,
		Settings:    a.Settings,
		Diagnostics: a.Diagnostics,
		ResultsDir:  a.Config.ResultsDir,
		CORSOrigins: a.Config.CORSOrigins,
		Logger:      a.Logger,
	})
	go func() { errCh <- srv.Run(ctx) }()

	if a.Config.InboxDir != "" {
		watcher, err := ingest.NewWatcher(ingest.Config{
			Dir:         a.Config.InboxDir,
			InitialScan: true,
			Logger:      a.Logger,
		}, a.Intake)
		if err != nil {
			cancel()
			return errors.Join(err, <-errCh, a.Worker.Stop(StopTimeout))
		}
		running++
		go func() { errCh <- watcher.Run(ctx) }()
	}

	var errs []error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	errs = append(errs, a.Worker.Stop(StopTimeout))
	return errors.Join(errs...)
}

// Close releases the job store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
