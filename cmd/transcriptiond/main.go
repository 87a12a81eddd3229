package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"transcriptiond/cmd/transcriptiond/commands"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path to the environment file",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "transcriptiond",
		Usage: "queue media files and transcribe them in the background",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, the worker and the inbox watcher",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.ServeAction,
			},
			{
				Name:   "worker",
				Usage:  "process queued jobs without the HTTP API",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.WorkerAction,
			},
			{
				Name:      "submit",
				Usage:     "enqueue media files",
				ArgsUsage: "<file>...",
				Flags:     []cli.Flag{envFlag()},
				Action:    commands.SubmitAction,
			},
			{
				Name:  "list",
				Usage: "list jobs",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "filter by status (queued/running/done/failed)",
					},
				},
				Action: commands.ListAction,
			},
			{
				Name:      "export",
				Usage:     "export jobs as an Excel workbook",
				ArgsUsage: "[out.xlsx]",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "output",
						Usage: "output file path",
						Value: "jobs.xlsx",
					},
				},
				Action: commands.ExportAction,
			},
			{
				Name:   "doctor",
				Usage:  "check tools, model and directories",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.DoctorAction,
			},
			{
				Name:  "models",
				Usage: "manage whisper.cpp models",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "show the model catalog",
						Flags:  []cli.Flag{envFlag()},
						Action: commands.ModelsListAction,
					},
					{
						Name:      "download",
						Usage:     "download a model and use it",
						ArgsUsage: "<id>",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "dir",
								Usage: "target directory (defaults to the model_path directory)",
							},
						},
						Action: commands.ModelsDownloadAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
