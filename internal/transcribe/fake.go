package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"transcriptiond/internal/domain"
)

// Fake writes a deterministic transcript without touching the media file.
type Fake struct{}

func (Fake) Transcribe(ctx context.Context, job domain.Job, resultsDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(resultsDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job results dir: %w", err)
	}
	path := filepath.Join(dir, "result.txt")
	content := fmt.Sprintf("Fake transcript for %s (%s)\n", job.Filename, job.ID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write fake transcript: %w", err)
	}
	return path, nil
}
