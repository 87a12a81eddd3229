package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"transcriptiond/internal/domain"
)

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the settings file location.
func (s *JSONStore) Path() string { return s.path }

// Load reads settings from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// LoadRaw returns only what the file contains, without defaults.
func (s *JSONStore) LoadRaw() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFile()
}

// Save writes settings atomically via a temp file and rename.
func (s *JSONStore) Save(cfg domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(cfg)
}

// Update merges patch into the stored file and returns the result with
// defaults applied.
func (s *JSONStore) Update(patch SettingsPatch) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readFile()
	if err != nil {
		return domain.Settings{}, err
	}
	next := patch.Apply(current)
	if err := s.writeLocked(next); err != nil {
		return domain.Settings{}, err
	}
	return withDefaults(next), nil
}

func (s *JSONStore) loadLocked() (domain.Settings, error) {
	cfg, err := s.readFile()
	if err != nil {
		return domain.Settings{}, err
	}
	return withDefaults(cfg), nil
}

func (s *JSONStore) readFile() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Settings{}, nil
		}
		return domain.Settings{}, err
	}

	var cfg domain.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return cfg, nil
}

func (s *JSONStore) writeLocked(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Exists reports whether the settings file is present on disk.
func (s *JSONStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}
