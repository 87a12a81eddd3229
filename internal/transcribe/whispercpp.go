package transcribe

import (
	"context"
	"log/slog"
	"path/filepath"

	"transcriptiond/internal/domain"
)

// SettingsFunc returns the settings in effect for the next job.
type SettingsFunc func() domain.Settings

// WhisperCPP runs the local ffmpeg + whisper.cpp pipeline for each job and
// writes every configured output format into results/<job id>/.
type WhisperCPP struct {
	pipeline *Pipeline
	settings SettingsFunc
	logger   *slog.Logger
}

// NewWhisperCPP wires a pipeline to a settings source.
func NewWhisperCPP(pipeline *Pipeline, settings SettingsFunc, logger *slog.Logger) *WhisperCPP {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperCPP{pipeline: pipeline, settings: settings, logger: logger}
}

func (w *WhisperCPP) Transcribe(ctx context.Context, job domain.Job, resultsDir string) (string, error) {
	settings := w.settings()
	logger := w.logger.With("job_id", job.ID)

	result, err := w.pipeline.Run(ctx, Request{
		InputPath:     job.UploadPath,
		ModelPath:     settings.ModelPath,
		Language:      settings.Language,
		OutputDir:     filepath.Join(resultsDir, job.ID),
		OutputFormats: settings.OutputFormats,
		OnLog: func(log CommandLog) {
			logger.Debug("command finished", "command", log.Command, "exit_code", log.ExitCode, "stderr", tail(log.Stderr, 2000))
		},
	})
	if err != nil {
		return "", err
	}
	return result.TextPath, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
