package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"transcriptiond/internal/domain"
)

// DefaultOpenAIModel is used when settings leave whisper_model empty.
const DefaultOpenAIModel = "whisper-1"

// ErrAPIKeyNotSet is returned when the OpenAI backend has no key.
var ErrAPIKeyNotSet = errors.New("OPENAI_API_KEY is not set")

// OpenAI sends the uploaded media to the OpenAI audio transcription API.
type OpenAI struct {
	client   openai.Client
	settings SettingsFunc
}

// NewOpenAI builds the backend. Extra options are passed to the client.
func NewOpenAI(apiKey string, settings SettingsFunc, opts ...option.RequestOption) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyNotSet
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{
		client:   openai.NewClient(opts...),
		settings: settings,
	}, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, job domain.Job, resultsDir string) (string, error) {
	settings := o.settings()
	model := strings.TrimSpace(settings.WhisperModel)
	if model == "" {
		model = DefaultOpenAIModel
	}

	media, err := os.Open(job.UploadPath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer media.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  media,
		Model: openai.AudioModel(model),
	}
	if lang := normalizeLanguage(settings.Language); lang != "" {
		params.Language = openai.String(lang)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai transcription failed: HTTP %d", apiErr.StatusCode)
		}
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}

	dir := filepath.Join(resultsDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job results dir: %w", err)
	}
	base := filepath.Join(dir, outputStem(job.Filename))
	textPath := base + ".txt"
	if err := os.WriteFile(textPath, []byte(strings.TrimSpace(resp.Text)+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	for _, format := range domain.NormalizeOutputFormats(settings.OutputFormats) {
		if format != "json" {
			continue
		}
		payload, err := json.MarshalIndent(map[string]string{"text": resp.Text, "model": model}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json transcript: %w", err)
		}
		if err := os.WriteFile(base+".json", payload, 0o644); err != nil {
			return "", fmt.Errorf("write json transcript: %w", err)
		}
	}
	return textPath, nil
}
