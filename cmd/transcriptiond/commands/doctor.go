package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"transcriptiond/internal/domain"
)

// ErrDiagnosticsFailed is returned when at least one check failed.
var ErrDiagnosticsFailed = errors.New("diagnostics reported failures")

// DoctorAction prints the environment checks.
func DoctorAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	report := appCtx.App.Diagnostics(ctx)
	if err := writeReport(cmd.Root().Writer, report); err != nil {
		return err
	}
	if report.HasFailures {
		return ErrDiagnosticsFailed
	}
	return nil
}

func writeReport(w io.Writer, report domain.DiagnosticReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range report.Items {
		fmt.Fprintf(tw, "[%s]\t%s\t%s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(tw, "\t\thint: %s\n", item.Hint)
		}
	}
	return tw.Flush()
}
