package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"transcriptiond/internal/domain"
)

// Backend produces a transcript file for a job.
type Backend interface {
	Transcribe(ctx context.Context, job domain.Job, resultsDir string) (string, error)
}

// Backend names accepted by New.
const (
	BackendWhisperCPP = "whispercpp"
	BackendOpenAI     = "openai"
	BackendFake       = "fake"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = BackendWhisperCPP

var backendAliases = map[string]string{
	"whispercpp":  BackendWhisperCPP,
	"whisper.cpp": BackendWhisperCPP,
	"whisper-cpp": BackendWhisperCPP,
	"local":       BackendWhisperCPP,
	"openai":      BackendOpenAI,
	"whisper-api": BackendOpenAI,
	"fake":        BackendFake,
	"noop":        BackendFake,
}

// Deps carries what the concrete backends need.
type Deps struct {
	FFmpegPath   string
	WhisperPath  string
	OpenAIAPIKey string
	Settings     SettingsFunc
	Logger       *slog.Logger
}

// CanonicalBackend maps a configured name or alias to its canonical name.
func CanonicalBackend(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return DefaultBackend, nil
	}
	canonical, ok := backendAliases[key]
	if !ok {
		return "", fmt.Errorf("unknown transcriber backend %q (use %s, %s or %s)", name, BackendWhisperCPP, BackendOpenAI, BackendFake)
	}
	return canonical, nil
}

// New resolves a backend by name.
func New(name string, deps Deps) (Backend, error) {
	canonical, err := CanonicalBackend(name)
	if err != nil {
		return nil, err
	}
	settings := deps.Settings
	if settings == nil {
		settings = func() domain.Settings { return domain.Settings{} }
	}

	switch canonical {
	case BackendFake:
		return Fake{}, nil
	case BackendOpenAI:
		return NewOpenAI(deps.OpenAIAPIKey, settings)
	default:
		return NewWhisperCPP(NewPipeline(deps.FFmpegPath, deps.WhisperPath), settings, deps.Logger), nil
	}
}
