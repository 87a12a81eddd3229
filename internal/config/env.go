package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings read from the environment.
type Config struct {
	DataDir      string
	Database     string
	UploadsDir   string
	ResultsDir   string
	InboxDir     string
	SettingsPath string

	Addr        string
	CORSOrigins []string
	LogFormat   string

	Backend      string
	PollInterval time.Duration
	JobTimeout   time.Duration

	FFmpegPath   string
	WhisperPath  string
	OpenAIAPIKey string
}

// Load reads envFilePath when present, then the environment.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFilePath, err)
		}
	}

	dataDir := getEnv("TRANSCRIBER_DATA_DIR", "data")
	cfg := &Config{
		DataDir:      dataDir,
		Database:     getEnv("TRANSCRIBER_DATABASE", filepath.Join(dataDir, "jobs.db")),
		UploadsDir:   getEnv("TRANSCRIBER_UPLOADS_DIR", filepath.Join(dataDir, "uploads")),
		ResultsDir:   getEnv("TRANSCRIBER_RESULTS_DIR", filepath.Join(dataDir, "results")),
		InboxDir:     getEnv("TRANSCRIBER_INBOX_DIR", ""),
		SettingsPath: getEnv("TRANSCRIBER_SETTINGS_PATH", filepath.Join(dataDir, "settings.json")),
		Addr:         getEnv("TRANSCRIBER_ADDR", ":8080"),
		CORSOrigins:  splitList(getEnv("TRANSCRIBER_CORS_ORIGINS", "")),
		LogFormat:    strings.ToLower(getEnv("TRANSCRIBER_LOG_FORMAT", "text")),
		Backend:      getEnv("TRANSCRIBER_BACKEND", ""),
		FFmpegPath:   getEnv("FFMPEG_BIN", "ffmpeg"),
		WhisperPath:  getEnv("WHISPER_BIN", "whisper-cli"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
	}

	var err error
	if cfg.PollInterval, err = getEnvAsDuration("TRANSCRIBER_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getEnvAsDuration("TRANSCRIBER_JOB_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the process cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("TRANSCRIBER_POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("TRANSCRIBER_JOB_TIMEOUT must not be negative, got %s", c.JobTimeout))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("TRANSCRIBER_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("TRANSCRIBER_DATABASE must not be empty"))
	}
	if strings.TrimSpace(c.UploadsDir) == "" {
		errs = append(errs, errors.New("TRANSCRIBER_UPLOADS_DIR must not be empty"))
	}
	if strings.TrimSpace(c.ResultsDir) == "" {
		errs = append(errs, errors.New("TRANSCRIBER_RESULTS_DIR must not be empty"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
