// Package uploads stores submitted media and removes it once a job is
// finished.
package uploads

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Cleaner deletes uploads that live under Root.
type Cleaner struct {
	Root   string
	Logger *slog.Logger
}

// NewCleaner returns a cleaner bound to the uploads root.
func NewCleaner(root string, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{Root: root, Logger: logger}
}

// RemoveUpload deletes uploadPath and its parent directory when empty.
// Paths resolving outside Root are left alone. Failures are logged only.
func (c *Cleaner) RemoveUpload(uploadPath, jobID string) {
	logger := c.Logger.With("job_id", jobID)
	if strings.TrimSpace(uploadPath) == "" {
		return
	}

	root := resolvePath(c.Root)
	target := resolvePath(uploadPath)
	if !isWithinBaseDir(root, target) || target == root {
		logger.Warn("refusing to remove upload outside uploads dir", "path", uploadPath, "root", c.Root)
		return
	}

	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn("failed to stat upload", "path", target, "error", err)
		return
	}
	if !info.Mode().IsRegular() {
		logger.Warn("upload path is not a file", "path", target)
		return
	}
	if err := os.Remove(target); err != nil {
		logger.Warn("failed to remove upload", "path", target, "error", err)
		return
	}

	// Only empty job directories go away. The root itself stays.
	if parent := filepath.Dir(target); parent != root {
		_ = os.Remove(parent)
	}
}

// resolvePath returns an absolute path with symlinks evaluated for the
// longest existing prefix.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	var missing []string
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}

func isWithinBaseDir(baseDir, targetPath string) bool {
	relative, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(targetPath))
	if err != nil {
		return false
	}
	if relative == "." {
		return true
	}
	return relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}
