package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidJobID is returned for ids that could escape the uploads root.
var ErrInvalidJobID = errors.New("invalid job id")

// Save copies src to <root>/<jobID>/<sanitized filename> and returns the
// absolute path.
func Save(root, jobID, filename string, src io.Reader) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve uploads root: %w", err)
	}
	dir := filepath.Join(absRoot, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, SanitizeFilename(filename))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

// SanitizeFilename keeps the base name and drops path tricks.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := strings.TrimSpace(filepath.Base(name))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "upload"
	}
	return base
}
