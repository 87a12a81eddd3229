package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"transcriptiond/internal/transcribe"
)

// DefaultDir is where models land when model_path is unset.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, ".transcriptiond", "models"), nil
}

// DownloadDir picks the directory a new model should be written to for
// the configured model_path: the path itself for a directory, the parent
// for a model file.
func DownloadDir(modelPath string) (string, error) {
	trimmed := strings.TrimSpace(modelPath)
	if trimmed == "" {
		return DefaultDir()
	}

	info, err := os.Stat(trimmed)
	switch {
	case err == nil && info.IsDir():
		return trimmed, nil
	case err == nil && transcribe.IsModelFile(trimmed):
		return filepath.Dir(trimmed), nil
	case err == nil:
		return "", fmt.Errorf("model path points to non-model file: %s", trimmed)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("check model path: %w", err)
	case transcribe.IsModelFile(trimmed):
		return filepath.Dir(trimmed), nil
	default:
		return trimmed, nil
	}
}

// knownDirs returns the default directory plus the one implied by
// modelPath, deduplicated and sorted.
func knownDirs(modelPath string) []string {
	seen := map[string]struct{}{}
	add := func(path string) {
		p := strings.TrimSpace(path)
		if p == "" {
			return
		}
		if clean := filepath.Clean(p); clean != "." {
			seen[clean] = struct{}{}
		}
	}

	if dir, err := DefaultDir(); err == nil {
		add(dir)
	}
	if dir, err := DownloadDir(modelPath); err == nil && strings.TrimSpace(modelPath) != "" {
		add(dir)
	}

	out := make([]string, 0, len(seen))
	for dir := range seen {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// List returns the catalog with local copies marked.
func List(modelPath string) []Model {
	out := Catalog()
	markDownloaded(out, knownDirs(modelPath))
	return out
}

func markDownloaded(models []Model, dirs []string) {
	for i := range models {
		for _, dir := range dirs {
			candidate := filepath.Join(dir, models[i].FileName)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			models[i].Downloaded = true
			models[i].LocalPath = candidate
			break
		}
	}
}
