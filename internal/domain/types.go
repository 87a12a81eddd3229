package domain

import (
	"strings"
	"time"
)

// JobStatus is the persisted lifecycle state of a transcription job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job is one submitted media file and its processing state.
type Job struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     JobStatus `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UploadPath string    `json:"uploadPath"`
}

// Settings is the user-editable content of settings.json.
type Settings struct {
	LogLevel       string   `json:"log_level,omitempty"`
	OutputFormats  []string `json:"output_formats,omitempty"`
	WhisperModel   string   `json:"whisper_model,omitempty"`
	ModelPath      string   `json:"model_path,omitempty"`
	Language       string   `json:"language,omitempty"`
	TelegramToken  string   `json:"telegram_token,omitempty"`
	TelegramChatID string   `json:"telegram_chat_id,omitempty"`
}

// Log levels accepted in settings.
var LogLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// OutputFormats lists the transcript formats in canonical order.
var OutputFormats = []string{"txt", "srt", "vtt", "json"}

// NormalizeOutputFormats lowercases, drops unknown entries and duplicates,
// always includes txt and returns the result in canonical order.
func NormalizeOutputFormats(formats []string) []string {
	seen := map[string]bool{"txt": true}
	for _, f := range formats {
		seen[strings.ToLower(strings.TrimSpace(f))] = true
	}
	out := make([]string, 0, len(OutputFormats))
	for _, f := range OutputFormats {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}
