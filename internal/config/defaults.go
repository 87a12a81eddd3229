package config

import (
	"os"
	"path/filepath"

	"transcriptiond/internal/domain"
)

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return domain.Settings{
		LogLevel:      "INFO",
		OutputFormats: []string{"txt"},
		WhisperModel:  "whisper-1",
		ModelPath:     filepath.Join(homeDir, ".transcriptiond", "models"),
		Language:      "auto",
	}
}

// withDefaults fills empty fields of s from DefaultSettings.
func withDefaults(s domain.Settings) domain.Settings {
	d := DefaultSettings()
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if len(s.OutputFormats) == 0 {
		s.OutputFormats = d.OutputFormats
	}
	s.OutputFormats = domain.NormalizeOutputFormats(s.OutputFormats)
	if s.WhisperModel == "" {
		s.WhisperModel = d.WhisperModel
	}
	if s.ModelPath == "" {
		s.ModelPath = d.ModelPath
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	return s
}
