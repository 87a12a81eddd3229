package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"transcriptiond/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	upload_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at, id);
`

const jobColumns = `id, filename, status, created_at, upload_path`

// SQLite is a file-backed job table. Several processes may open the same
// file; claims are serialized by an immediate write transaction.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite creates parent directories and the schema if needed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Insert(ctx context.Context, job domain.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	job = withInsertDefaults(job)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.Filename, string(job.Status), formatTime(job.CreatedAt), job.UploadPath,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetStatus overwrites the status. An unknown id is not an error.
func (s *SQLite) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (s *SQLite) ClaimNext(ctx context.Context) (job *domain.Job, err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// Take the write lock before reading so no other writer can claim the
	// same row between the select and the update.
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// The rollback must run even if ctx is already cancelled.
		if _, rbErr := conn.ExecContext(context.Background(), `ROLLBACK`); rbErr != nil && err != nil {
			err = errors.Join(err, fmt.Errorf("rollback claim: %w", rbErr))
		}
	}()

	row := conn.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		string(domain.JobStatusQueued),
	)
	claimed, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
			return nil, fmt.Errorf("commit empty claim: %w", err)
		}
		committed = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select queued job: %w", err)
	}

	if _, err := conn.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE id = ?`,
		string(domain.JobStatusRunning), claimed.ID,
	); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	committed = true

	claimed.Status = domain.JobStatusRunning
	return &claimed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job       domain.Job
		status    string
		createdAt string
	)
	if err := row.Scan(&job.ID, &job.Filename, &status, &createdAt, &job.UploadPath); err != nil {
		return domain.Job{}, err
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return domain.Job{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = ts
	return job, nil
}

func withInsertDefaults(job domain.Job) domain.Job {
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.CreatedAt = job.CreatedAt.UTC().Truncate(time.Second)
	return job
}

// isDuplicateKey matches only a primary key conflict on jobs.id.
func isDuplicateKey(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
