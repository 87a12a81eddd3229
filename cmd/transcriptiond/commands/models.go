package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"transcriptiond/internal/config"
	"transcriptiond/internal/models"
)

// ModelsListAction prints the model catalog with local copies marked.
func ModelsListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return writeModels(cmd.Root().Writer, models.List(appCtx.App.Settings.Effective().ModelPath))
}

func writeModels(w io.Writer, list []models.Model) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tLOCAL\tDESCRIPTION")
	for _, m := range list {
		local := "-"
		if m.Downloaded {
			local = m.LocalPath
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.SizeLabel, local, m.Description)
	}
	return tw.Flush()
}

// ModelsDownloadAction fetches a catalog model and points model_path at it.
func ModelsDownloadAction(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.Args().First())
	if id == "" {
		return errors.New("model id is required")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dir := cmd.String("dir")
	if dir == "" {
		if dir, err = models.DownloadDir(appCtx.App.Settings.Effective().ModelPath); err != nil {
			return err
		}
	}

	downloader := &models.Downloader{Logger: appCtx.Logger}
	path, err := downloader.Download(ctx, id, dir)
	if err != nil {
		return err
	}

	if _, err := appCtx.App.Settings.Update(config.SettingsPatch{ModelPath: &path}); err != nil {
		return fmt.Errorf("save model path: %w", err)
	}
	fmt.Fprintln(cmd.Root().Writer, path)
	return nil
}
