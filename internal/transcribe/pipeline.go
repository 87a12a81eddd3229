package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"transcriptiond/internal/domain"
)

// Request describes one local whisper.cpp run.
type Request struct {
	InputPath     string
	ModelPath     string
	Language      string
	OutputDir     string
	OutputFormats []string
	OnLog         func(log CommandLog)
}

// Result lists the files written into Request.OutputDir.
type Result struct {
	TextPath string
	Outputs  []string
	Logs     []CommandLog
}

// CommandLog captures one external command invocation.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

const (
	stagePreprocessing = "preprocessing"
	stageTranscribing  = "transcribing"
	stageExporting     = "exporting"
)

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Pipeline converts media to 16 kHz mono WAV with ffmpeg and feeds it to
// whisper.cpp.
type Pipeline struct {
	ffmpegPath  string
	whisperPath string
	runner      commandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	readDir     func(name string) ([]os.DirEntry, error)
}

// NewPipeline builds a pipeline calling the given binaries. Empty names
// fall back to "ffmpeg" and "whisper-cli".
func NewPipeline(ffmpegPath, whisperPath string) *Pipeline {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(whisperPath) == "" {
		whisperPath = "whisper-cli"
	}
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		whisperPath: whisperPath,
		runner:      &execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		readDir:     os.ReadDir,
	}
}

// Run performs preprocessing and transcription. The temporary WAV is
// always removed before returning.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return Result{}, &PipelineError{Stage: stagePreprocessing, Message: "input media path is required"}
	}
	if _, err := p.stat(req.InputPath); err != nil {
		return Result{}, &PipelineError{
			Stage:   stagePreprocessing,
			Message: fmt.Sprintf("cannot access input media: %s", req.InputPath),
			Err:     err,
		}
	}

	modelPath, err := p.resolveModelPath(req.ModelPath)
	if err != nil {
		return Result{}, &PipelineError{Stage: stageTranscribing, Message: err.Error(), Err: err}
	}

	if strings.TrimSpace(req.OutputDir) == "" {
		return Result{}, &PipelineError{Stage: stageExporting, Message: "output directory is required"}
	}
	if err := p.mkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, &PipelineError{
			Stage:   stageExporting,
			Message: fmt.Sprintf("cannot create output directory: %s", req.OutputDir),
			Err:     err,
		}
	}

	tempDir, err := p.mkdirTemp("", "transcriptiond-*")
	if err != nil {
		return Result{}, &PipelineError{Stage: stagePreprocessing, Message: "failed to create temporary workspace", Err: err}
	}
	defer func() { _ = p.removeAll(tempDir) }()

	wavPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	ffmpegArgs := buildFFmpegArgs(req.InputPath, wavPath)
	ffmpegLog, runErr := p.run(ctx, req.OnLog, p.ffmpegPath, ffmpegArgs)
	if runErr != nil {
		return Result{}, &PipelineError{Stage: stagePreprocessing, Message: "ffmpeg audio conversion failed", CommandLog: ffmpegLog, Err: runErr}
	}
	if _, err := p.stat(wavPath); err != nil {
		return Result{}, &PipelineError{Stage: stagePreprocessing, Message: "ffmpeg completed but output file is missing", CommandLog: ffmpegLog, Err: err}
	}

	formats := domain.NormalizeOutputFormats(req.OutputFormats)
	base := filepath.Join(req.OutputDir, outputStem(req.InputPath))
	whisperArgs := buildWhisperArgs(modelPath, wavPath, base, req.Language, formats)
	whisperLog, runErr := p.run(ctx, req.OnLog, p.whisperPath, whisperArgs)
	if runErr != nil {
		return Result{}, &PipelineError{Stage: stageTranscribing, Message: "whisper.cpp transcription failed", CommandLog: whisperLog, Err: runErr}
	}

	result := Result{Logs: []CommandLog{ffmpegLog, whisperLog}}
	for _, format := range formats {
		path := base + "." + format
		if _, err := p.stat(path); err != nil {
			return Result{}, &PipelineError{
				Stage:      stageExporting,
				Message:    fmt.Sprintf("whisper.cpp completed but %s output is missing", format),
				CommandLog: whisperLog,
				Err:        err,
			}
		}
		result.Outputs = append(result.Outputs, path)
		if format == "txt" {
			result.TextPath = path
		}
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, onLog func(CommandLog), name string, args []string) (CommandLog, error) {
	out, err := p.runner.Run(ctx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
	}
	if onLog != nil {
		onLog(log)
	}
	return log, err
}

// resolveModelPath accepts a model file or a directory holding models.
// For directories the lexically first .bin/.gguf file wins.
func (p *Pipeline) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := p.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := p.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && IsModelFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}
	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

// IsModelFile reports whether name looks like a ggml model file.
func IsModelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".bin" || ext == ".gguf"
}

func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

var formatFlags = map[string]string{
	"txt":  "-otxt",
	"srt":  "-osrt",
	"vtt":  "-ovtt",
	"json": "-oj",
}

func buildWhisperArgs(modelPath, audioPath, outBase, language string, formats []string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
	}
	for _, format := range formats {
		args = append(args, formatFlags[format])
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}

// outputStem derives the result file stem from the uploaded media name.
func outputStem(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "transcript"
	}
	return name
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ffmpegPath string,
	whisperPath string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		whisperPath: whisperPath,
		runner:      runner,
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
		stat:        stat,
		mkdirAll:    os.MkdirAll,
		readDir:     os.ReadDir,
	}
}
