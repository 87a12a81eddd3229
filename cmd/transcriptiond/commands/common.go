// Package commands implements the transcriptiond CLI actions.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"transcriptiond/internal/bootstrap"
	"transcriptiond/internal/config"
	"transcriptiond/internal/logging"
)

// AppContext holds what every command needs after startup.
type AppContext struct {
	Config *config.Config
	Logger *slog.Logger
	App    *bootstrap.App
}

// NewAppContext loads envFile, installs the logger and builds the app.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Format = cfg.LogFormat
	logger := logging.New(logCfg)

	app, err := bootstrap.New(ctx, cfg, logger, logCfg.Level)
	if err != nil {
		return nil, fmt.Errorf("start app: %w", err)
	}
	return &AppContext{Config: cfg, Logger: logger, App: app}, nil
}

// Close releases the app resources.
func (ac *AppContext) Close() {
	if ac.App == nil {
		return
	}
	if err := ac.App.Close(); err != nil {
		ac.Logger.Warn("failed to close app", "error", err)
	}
}
