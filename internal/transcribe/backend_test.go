package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"

	"transcriptiond/internal/domain"
)

// TestFakeWritesDeterministicResult checks the fake backend artifact.
func TestFakeWritesDeterministicResult(t *testing.T) {
	resultsDir := t.TempDir()
	job := domain.Job{ID: "job-7", Filename: "alpha.mp3"}

	path, err := Fake{}.Transcribe(context.Background(), job, resultsDir)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if want := filepath.Join(resultsDir, "job-7", "result.txt"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(content) != "Fake transcript for alpha.mp3 (job-7)\n" {
		t.Fatalf("content = %q", content)
	}
}

// TestNewResolvesBackends covers names, aliases and unknown values.
func TestNewResolvesBackends(t *testing.T) {
	b, err := New("FAKE", Deps{})
	if err != nil {
		t.Fatalf("New(FAKE) error = %v", err)
	}
	if _, ok := b.(Fake); !ok {
		t.Fatalf("backend = %T, want Fake", b)
	}

	b, err = New("", Deps{})
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	if _, ok := b.(*WhisperCPP); !ok {
		t.Fatalf("default backend = %T, want *WhisperCPP", b)
	}

	b, err = New("whisper.cpp", Deps{})
	if err != nil {
		t.Fatalf("New(whisper.cpp) error = %v", err)
	}
	if _, ok := b.(*WhisperCPP); !ok {
		t.Fatalf("backend = %T, want *WhisperCPP", b)
	}

	if _, err := New("openai", Deps{}); !errors.Is(err, ErrAPIKeyNotSet) {
		t.Fatalf("New(openai) without key error = %v, want ErrAPIKeyNotSet", err)
	}
	if _, err := New("mlx", Deps{}); err == nil || !strings.Contains(err.Error(), "unknown transcriber backend") {
		t.Fatalf("New(mlx) error = %v", err)
	}
}

// TestWhisperCPPUsesSettingsAndJobDir checks job wiring into the pipeline.
func TestWhisperCPPUsesSettingsAndJobDir(t *testing.T) {
	root := t.TempDir()
	upload := filepath.Join(root, "uploads", "job-1", "talk.m4a")
	model := filepath.Join(root, "ggml-tiny.bin")
	mustWriteFile(t, upload, "media")
	mustWriteFile(t, model, "model")

	var gotLanguage string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			if name == "ffmpeg" {
				if argValue(args, "-i") != upload {
					t.Fatalf("ffmpeg input = %q, want %q", argValue(args, "-i"), upload)
				}
				mustWriteFile(t, args[len(args)-1], "wav")
				return commandResult{}, nil
			}
			gotLanguage = argValue(args, "-l")
			whisperWritesOutputs(t, args, "spoken words")
			return commandResult{Stderr: "progress"}, nil
		},
	}
	pipeline := NewPipelineForTests("ffmpeg", "whisper-cli", runner, os.MkdirTemp, os.RemoveAll, os.Stat)
	backend := NewWhisperCPP(pipeline, func() domain.Settings {
		return domain.Settings{ModelPath: model, Language: "de", OutputFormats: []string{"json"}}
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	resultsDir := filepath.Join(root, "results")
	path, err := backend.Transcribe(context.Background(), domain.Job{ID: "job-1", Filename: "talk.m4a", UploadPath: upload}, resultsDir)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if want := filepath.Join(resultsDir, "job-1", "talk.txt"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(filepath.Join(resultsDir, "job-1", "talk.json")); err != nil {
		t.Fatalf("json output missing: %v", err)
	}
	if gotLanguage != "de" {
		t.Fatalf("language = %q, want de", gotLanguage)
	}
}

// TestOpenAITranscribe exercises the API backend against a stub server.
func TestOpenAITranscribe(t *testing.T) {
	var gotPath, gotAuth, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"hello from the api"}`)
	}))
	defer server.Close()

	root := t.TempDir()
	upload := filepath.Join(root, "uploads", "job-2", "memo.mp3")
	mustWriteFile(t, upload, "ID3")

	backend, err := NewOpenAI("sk-test-key", func() domain.Settings {
		return domain.Settings{OutputFormats: []string{"json"}}
	}, option.WithBaseURL(server.URL+"/v1/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	resultsDir := filepath.Join(root, "results")
	path, err := backend.Transcribe(context.Background(), domain.Job{ID: "job-2", Filename: "memo.mp3", UploadPath: upload}, resultsDir)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if !strings.HasSuffix(gotPath, "/audio/transcriptions") {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotModel != DefaultOpenAIModel {
		t.Fatalf("model = %q, want %q", gotModel, DefaultOpenAIModel)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(content) != "hello from the api\n" {
		t.Fatalf("transcript = %q", content)
	}
	if _, err := os.Stat(filepath.Join(resultsDir, "job-2", "memo.json")); err != nil {
		t.Fatalf("json output missing: %v", err)
	}
}

// TestOpenAITranscribeHTTPError reports the status without the response body.
func TestOpenAITranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key sk-test-key"}}`)
	}))
	defer server.Close()

	root := t.TempDir()
	upload := filepath.Join(root, "clip.wav")
	mustWriteFile(t, upload, "RIFF")

	backend, err := NewOpenAI("sk-test-key", func() domain.Settings { return domain.Settings{} },
		option.WithBaseURL(server.URL+"/v1/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	_, err = backend.Transcribe(context.Background(), domain.Job{ID: "j", Filename: "clip.wav", UploadPath: upload}, root)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "HTTP 401") || strings.Contains(err.Error(), "sk-test-key") {
		t.Fatalf("error = %q", err)
	}
}

// TestFindResult locates the text transcript of a job.
func TestFindResult(t *testing.T) {
	resultsDir := t.TempDir()
	mustWriteFile(t, filepath.Join(resultsDir, "job-1", "talk.srt"), "1")
	mustWriteFile(t, filepath.Join(resultsDir, "job-1", "talk.txt"), "text")

	path, err := FindResult(resultsDir, "job-1")
	if err != nil {
		t.Fatalf("FindResult() error = %v", err)
	}
	if path != filepath.Join(resultsDir, "job-1", "talk.txt") {
		t.Fatalf("path = %q", path)
	}

	if _, err := FindResult(resultsDir, "missing"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("missing job err = %v, want ErrNoResult", err)
	}
	if _, err := FindResult(resultsDir, "../etc"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("traversal err = %v, want ErrNoResult", err)
	}
}
