// Package intake turns uploaded media into queued jobs.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"transcriptiond/internal/domain"
	"transcriptiond/internal/jobs"
	"transcriptiond/internal/uploads"
)

// ErrEmptyFilename is returned when no usable filename was given.
var ErrEmptyFilename = errors.New("filename is required")

// Inserter is the part of the job store intake writes to.
type Inserter interface {
	Insert(ctx context.Context, job domain.Job) error
}

// Service saves uploads under the uploads root and enqueues them.
type Service struct {
	store      Inserter
	uploadsDir string
	events     *jobs.EventBus
	logger     *slog.Logger

	newID func() (string, error)
	now   func() time.Time
}

// NewService wires a producer. events may be nil.
func NewService(store Inserter, uploadsDir string, events *jobs.EventBus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		uploadsDir: uploadsDir,
		events:     events,
		logger:     logger,
		newID:      newJobID,
		now:        time.Now,
	}
}

// newJobID returns a time-ordered UUIDv7 so ids of jobs created within
// the same second still sort in submission order.
func newJobID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Submit stores src as filename and inserts a queued job for it. The
// upload is removed again if the job cannot be recorded.
func (s *Service) Submit(ctx context.Context, filename string, src io.Reader) (domain.Job, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.Job{}, ErrEmptyFilename
	}
	name := uploads.SanitizeFilename(filename)

	id, err := s.newID()
	if err != nil {
		return domain.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	path, err := uploads.Save(s.uploadsDir, id, name, src)
	if err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:         id,
		Filename:   name,
		Status:     domain.JobStatusQueued,
		CreatedAt:  s.now().UTC().Truncate(time.Second),
		UploadPath: path,
	}
	if err := s.store.Insert(ctx, job); err != nil {
		s.discard(path)
		return domain.Job{}, fmt.Errorf("enqueue %s: %w", name, err)
	}

	s.logger.Info("job queued", "job_id", job.ID, "filename", job.Filename)
	if s.events != nil {
		s.events.Publish(jobs.Event{JobID: job.ID, Filename: job.Filename, Type: jobs.EventTypeStatus, Status: job.Status})
	}
	return job, nil
}

// SubmitFile enqueues a copy of the file at path.
func (s *Service) SubmitFile(ctx context.Context, path string) (domain.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Job{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.Job{}, err
	}
	if !info.Mode().IsRegular() {
		return domain.Job{}, fmt.Errorf("%s is not a regular file", path)
	}
	return s.Submit(ctx, filepath.Base(path), f)
}

func (s *Service) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove orphaned upload", "path", path, "error", err)
		return
	}
	_ = os.Remove(filepath.Dir(path))
}
