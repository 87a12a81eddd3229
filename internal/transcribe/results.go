package transcribe

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoResult is returned when a job has no transcript on disk.
var ErrNoResult = errors.New("no transcript found")

// FindResult returns the .txt transcript stored for jobID.
func FindResult(resultsDir, jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", ErrNoResult
	}
	entries, err := os.ReadDir(filepath.Join(resultsDir, jobID))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoResult
	}
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", ErrNoResult
	}
	sort.Strings(names)
	return filepath.Join(resultsDir, jobID, names[0]), nil
}
