package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"transcriptiond/internal/domain"
)

// SubmitAction enqueues every file given as an argument.
func SubmitAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one file is required")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var errs []error
	for _, path := range paths {
		job, err := appCtx.App.Intake.SubmitFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(cmd.Root().Writer, "%s\t%s\n", job.ID, job.Filename)
	}
	return errors.Join(errs...)
}

// ListAction prints the jobs in claim order, oldest first.
func ListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	list, err := appCtx.App.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	status := domain.JobStatus(cmd.String("status"))
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	return writeJobs(cmd.Root().Writer, list, status)
}

func writeJobs(w io.Writer, list []domain.Job, status domain.JobStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tFILENAME")
	for _, job := range list {
		if status != "" && job.Status != status {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", job.ID, job.Status, job.CreatedAt.UTC().Format(time.DateTime), job.Filename)
	}
	return tw.Flush()
}

// ExportAction writes the job table as an Excel workbook to the path given
// as argument, or to --output.
func ExportAction(ctx context.Context, cmd *cli.Command) error {
	output := cmd.Args().First()
	if output == "" {
		output = cmd.String("output")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	data, err := appCtx.App.Export.JobsXLSX(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	appCtx.Logger.Info("jobs exported", "output", output, "bytes", len(data))
	return nil
}
