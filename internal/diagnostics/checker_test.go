package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"transcriptiond/internal/domain"
	"transcriptiond/internal/notify"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func foundTools(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func osChecker(lookPath func(string) (string, error)) *Checker {
	return NewCheckerForTests(lookPath, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove)
}

// TestCheckerRunAllPass validates the happy-path report for whisper.cpp.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "ggml-base.bin"), []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	report := osChecker(foundTools).Run(context.Background(), Inputs{
		Backend:    "whispercpp",
		Settings:   domain.Settings{ModelPath: modelDir},
		UploadsDir: filepath.Join(root, "uploads"),
		ResultsDir: filepath.Join(root, "results"),
		Telegram:   notify.TelegramConfig{Token: "tok", ChatID: "12345", Source: notify.SourceEnv},
		Store:      pingerFunc(func(context.Context) error { return nil }),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "tool_whisper.cpp", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "telegram", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "job_store", domain.DiagnosticStatusPass)
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	report := osChecker(func(string) (string, error) { return "", errors.New("not found") }).Run(context.Background(), Inputs{
		Settings: domain.Settings{ModelPath: "/path/that/does/not/exist"},
		Store:    pingerFunc(func(context.Context) error { return errors.New("database is locked") }),
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_whisper.cpp", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "model_path", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "uploads_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "results_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "telegram", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "job_store", domain.DiagnosticStatusFail)
}

// TestCheckerRunModelDirectoryWithoutModelFilesFails validates model check.
func TestCheckerRunModelDirectoryWithoutModelFilesFails(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "README.txt"), []byte("no model"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	report := osChecker(foundTools).Run(context.Background(), Inputs{
		Settings:   domain.Settings{ModelPath: modelDir},
		UploadsDir: filepath.Join(root, "uploads"),
		ResultsDir: filepath.Join(root, "results"),
	})

	assertStatusByID(t, report, "model_path", domain.DiagnosticStatusFail)
}

// TestCheckerRunOpenAIBackend skips local tools and checks the key.
func TestCheckerRunOpenAIBackend(t *testing.T) {
	root := t.TempDir()
	lookPath := func(name string) (string, error) {
		t.Fatalf("lookPath(%q) called for openai backend", name)
		return "", nil
	}
	in := Inputs{
		Backend:    "openai",
		UploadsDir: filepath.Join(root, "uploads"),
		ResultsDir: filepath.Join(root, "results"),
	}

	report := osChecker(lookPath).Run(context.Background(), in)
	assertStatusByID(t, report, "openai_api_key", domain.DiagnosticStatusFail)
	assertMissingID(t, report, "model_path")

	in.OpenAIAPIKey = "sk-abcdef123456"
	report = osChecker(lookPath).Run(context.Background(), in)
	assertStatusByID(t, report, "openai_api_key", domain.DiagnosticStatusPass)
	if report.HasFailures {
		t.Fatalf("unexpected failures: %+v", report.Items)
	}
}

// TestCheckerRunFakeBackendAndUnknownBackend covers the remaining names.
func TestCheckerRunFakeBackendAndUnknownBackend(t *testing.T) {
	root := t.TempDir()
	in := Inputs{
		Backend:    "fake",
		UploadsDir: filepath.Join(root, "uploads"),
		ResultsDir: filepath.Join(root, "results"),
	}
	report := osChecker(foundTools).Run(context.Background(), in)
	if report.HasFailures {
		t.Fatalf("fake backend should pass: %+v", report.Items)
	}
	assertMissingID(t, report, "tool_ffmpeg")

	in.Backend = "mlx"
	report = osChecker(foundTools).Run(context.Background(), in)
	assertStatusByID(t, report, "backend", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}

func assertMissingID(t *testing.T, report domain.DiagnosticReport, id string) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			t.Fatalf("unexpected diagnostic item %s", id)
		}
	}
}
