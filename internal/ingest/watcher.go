// Package ingest turns media files dropped into an inbox directory into
// queued jobs.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gabriel-vasile/mimetype"

	"transcriptiond/internal/domain"
)

// DefaultDebounce is the quiet period before pending files are submitted.
const DefaultDebounce = 2 * time.Second

// MediaExts lists the extensions accepted without content sniffing
// (lowercase, without '.').
var MediaExts = map[string]struct{}{
	"mp4": {}, "mov": {}, "mkv": {}, "avi": {}, "webm": {},
	"mp3": {}, "wav": {}, "m4a": {}, "flac": {}, "aac": {}, "ogg": {},
}

// Submitter enqueues a copy of a file.
type Submitter interface {
	SubmitFile(ctx context.Context, path string) (domain.Job, error)
}

// Config controls an inbox watcher.
type Config struct {
	Dir         string
	AllowedExts map[string]struct{}
	// InitialScan submits files already present at start.
	InitialScan bool
	Debounce    time.Duration
	Logger      *slog.Logger
}

// Watcher submits new inbox files and removes them once queued.
type Watcher struct {
	cfg       Config
	submitter Submitter
	logger    *slog.Logger
}

func NewWatcher(cfg Config, submitter Submitter) (*Watcher, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("inbox dir is required")
	}
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = MediaExts
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{cfg: cfg, submitter: submitter, logger: logger.With("component", "ingest")}, nil
}

// Run watches the inbox until ctx is done. Files are submitted after no
// event touched any pending file for the debounce period.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return err
	}
	w.logger.Info("watching inbox", "dir", w.cfg.Dir)

	pending := map[string]struct{}{}
	if w.cfg.InitialScan {
		entries, err := os.ReadDir(w.cfg.Dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				pending[filepath.Join(w.cfg.Dir, entry.Name())] = struct{}{}
			}
		}
	}

	timer := time.NewTimer(w.cfg.Debounce)
	if len(pending) == 0 && !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if e.Op&fsnotify.Rename != 0 {
				// The old name is gone; a Create follows for the new one.
				delete(pending, e.Name)
				continue
			}
			pending[e.Name] = struct{}{}
			timer.Reset(w.cfg.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		case <-timer.C:
			for path := range pending {
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if !w.accepts(path) {
		w.logger.Debug("ignoring non-media file", "path", path)
		return
	}

	job, err := w.submitter.SubmitFile(ctx, path)
	if err != nil {
		w.logger.Error("failed to submit inbox file", "path", path, "error", err)
		return
	}
	if err := os.Remove(path); err != nil {
		w.logger.Warn("failed to remove submitted inbox file", "path", path, "job_id", job.ID, "error", err)
		return
	}
	w.logger.Info("inbox file submitted", "path", path, "job_id", job.ID)
}

// accepts allows known media extensions, else falls back to sniffing.
func (w *Watcher) accepts(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, ok := w.cfg.AllowedExts[ext]; ok {
		return true
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}
