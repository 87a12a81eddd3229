// Package store persists transcription jobs and implements the atomic
// claim used by the worker.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"transcriptiond/internal/domain"
)

var (
	// ErrDuplicateID is returned by Insert when the job id already exists.
	ErrDuplicateID = errors.New("duplicate job id")
	// ErrNotFound is returned by Get for an unknown job id.
	ErrNotFound = errors.New("job not found")
)

// Store is the job table shared by producers and the worker.
type Store interface {
	Insert(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, error)
	List(ctx context.Context) ([]domain.Job, error)
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
	// ClaimNext marks the oldest queued job running and returns it.
	// It returns nil, nil when nothing is queued.
	ClaimNext(ctx context.Context) (*domain.Job, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the store at location. PostgreSQL URLs select the
// PostgreSQL backend, anything else is treated as a SQLite file path.
func Open(ctx context.Context, location string) (Store, error) {
	if isPostgresURL(location) {
		return OpenPostgres(ctx, location)
	}
	return OpenSQLite(ctx, location)
}

func isPostgresURL(location string) bool {
	lower := strings.ToLower(strings.TrimSpace(location))
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	// rows written by other tools may carry an offset or fraction
	return time.Parse(time.RFC3339Nano, value)
}
