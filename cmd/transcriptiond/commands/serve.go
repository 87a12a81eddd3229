package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// ServeAction runs the HTTP API, the worker and the inbox watcher.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Logger.Info("starting server", "addr", appCtx.Config.Addr, "backend", appCtx.Config.Backend)
	return appCtx.App.Serve(ctx)
}

// WorkerAction processes queued jobs without the HTTP API.
func WorkerAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Logger.Info("starting worker", "backend", appCtx.Config.Backend)
	return appCtx.App.RunWorker(ctx)
}
