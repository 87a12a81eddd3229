package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const downloadTimeout = 45 * time.Minute

// ErrUnknownModel is returned for ids missing from the catalog.
var ErrUnknownModel = errors.New("unknown model id")

// Downloader fetches catalog models over HTTP.
type Downloader struct {
	Client *http.Client
	Logger *slog.Logger
}

// Download fetches the model with id into dir and returns its path.
func (d *Downloader) Download(ctx context.Context, id, dir string) (string, error) {
	model, ok := Lookup(strings.TrimSpace(id))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	target := filepath.Join(dir, model.FileName)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("downloading model", "model", model.ID, "url", model.URL, "target", target)

	started := time.Now()
	n, err := d.fetch(ctx, model.URL, target)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", model.Name, err)
	}
	logger.Info("model downloaded", "model", model.ID, "bytes", n, "elapsed", time.Since(started).Round(time.Second))
	return target, nil
}

// fetch streams url into a .download file next to dest and renames it
// into place once complete.
func (d *Downloader) fetch(ctx context.Context, url, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := dest + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "transcriptiond")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temporary file: %w", err)
	}

	n, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write destination file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move download into place: %w", err)
	}
	return n, nil
}
