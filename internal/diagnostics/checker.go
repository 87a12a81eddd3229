// Package diagnostics reports whether the environment can run jobs.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"transcriptiond/internal/domain"
	"transcriptiond/internal/notify"
	"transcriptiond/internal/transcribe"
)

// Pinger is satisfied by the job store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Inputs describes the configuration under test.
type Inputs struct {
	Backend      string
	FFmpegPath   string
	WhisperPath  string
	OpenAIAPIKey string
	Settings     domain.Settings
	UploadsDir   string
	ResultsDir   string
	Telegram     notify.TelegramConfig
	Store        Pinger
}

// Checker validates tools, paths, credentials and the job store.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all checks relevant to in.Backend.
func (c *Checker) Run(ctx context.Context, in Inputs) domain.DiagnosticReport {
	var items []domain.DiagnosticItem

	backend, err := transcribe.CanonicalBackend(in.Backend)
	if err != nil {
		items = append(items, domain.DiagnosticItem{
			ID:      "backend",
			Name:    "Transcriber backend",
			Status:  domain.DiagnosticStatusFail,
			Message: err.Error(),
		})
	}

	switch backend {
	case transcribe.BackendWhisperCPP:
		items = append(items,
			c.checkTool("ffmpeg", in.FFmpegPath),
			c.checkTool("whisper.cpp", in.WhisperPath),
			c.checkModelPath(in.Settings.ModelPath),
		)
	case transcribe.BackendOpenAI:
		items = append(items, checkAPIKey(in.OpenAIAPIKey))
	}

	items = append(items,
		c.checkWritableDir("uploads_dir", "Uploads directory", in.UploadsDir),
		c.checkWritableDir("results_dir", "Results directory", in.ResultsDir),
		checkTelegram(in.Telegram),
	)
	if in.Store != nil {
		items = append(items, checkStore(ctx, in.Store))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a CLI executable resolves, either as a path or on PATH.
func (c *Checker) checkTool(name, bin string) domain.DiagnosticItem {
	if strings.TrimSpace(bin) == "" {
		bin = name
	}
	path, err := c.lookPath(bin)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", bin),
			Hint:    "Install it or point the corresponding *_BIN variable at the binary.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkModelPath validates the configured model file or model directory.
func (c *Checker) checkModelPath(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model_path",
		Name: "Model path",
	}

	if strings.TrimSpace(modelPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Model path is empty."
		item.Hint = "Set model_path in settings to a model file or a directory of whisper.cpp models."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model path does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model path: %s", modelPath)
		}
		item.Hint = "Run `transcriptiond models download <id>` or fix model_path."
		return item
	}

	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelPath)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	for _, entry := range entries {
		if !entry.IsDir() && transcribe.IsModelFile(entry.Name()) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory is valid: %s", modelPath)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelPath)
	item.Hint = "Place a .bin or .gguf model file in this directory or point to a model file directly."
	return item
}

// checkWritableDir creates dir if needed and writes a temp file into it.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " is not set."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Adjust filesystem permissions for the service user."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func checkAPIKey(key string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "openai_api_key", Name: "OpenAI API key"}
	if strings.TrimSpace(key) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "OPENAI_API_KEY is not set."
		item.Hint = "Export OPENAI_API_KEY or switch TRANSCRIBER_BACKEND to whispercpp."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key configured: " + notify.MaskSecret(key, 4)
	return item
}

// checkTelegram only warns: delivery is optional.
func checkTelegram(cfg notify.TelegramConfig) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "telegram", Name: "Telegram delivery"}
	if !cfg.Configured() {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Telegram is not configured; results will not be delivered."
		item.Hint = "Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID, or both telegram_* settings."
		return item
	}
	masked := cfg.Masked()
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Delivering to chat %s (source: %s)", masked.ChatID, cfg.Source)
	return item
}

func checkStore(ctx context.Context, store Pinger) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "job_store", Name: "Job store"}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Job store is unreachable: " + err.Error()
		item.Hint = "Check TRANSCRIBER_DATABASE."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = "Job store reachable."
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}
