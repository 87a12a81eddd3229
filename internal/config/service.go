package config

import (
	"log/slog"
	"os"

	"transcriptiond/internal/domain"
)

// Service combines the settings file with environment overrides.
type Service struct {
	store  *JSONStore
	getenv func(string) string
	logger *slog.Logger

	// OnChange runs with the new effective settings after each Update.
	OnChange func(domain.Settings)
}

// NewService reads overrides from the process environment.
func NewService(store *JSONStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, getenv: os.Getenv, logger: logger}
}

// Store returns the underlying settings file.
func (s *Service) Store() *JSONStore { return s.store }

// Effective returns the merged settings. A broken settings file is
// logged and treated as empty so running jobs keep working.
func (s *Service) Effective() domain.Settings {
	file, err := s.store.LoadRaw()
	if err != nil {
		s.logger.Warn("failed to read settings file, using defaults", "path", s.store.Path(), "error", err)
		file = domain.Settings{}
	}
	settings, _ := Effective(s.getenv, file)
	return settings
}

// Snapshot returns the masked view served to clients.
func (s *Service) Snapshot() (Snapshot, error) {
	return BuildSnapshot(s.getenv, s.store)
}

// Update persists patch and reports the new effective settings.
func (s *Service) Update(patch SettingsPatch) (domain.Settings, error) {
	if _, err := s.store.Update(patch); err != nil {
		return domain.Settings{}, err
	}
	effective := s.Effective()
	s.logger.Info("settings updated", "path", s.store.Path(), "log_level", effective.LogLevel)
	if s.OnChange != nil {
		s.OnChange(effective)
	}
	return effective, nil
}
