package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transcriptiond/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	upload_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at, id);
`

const pgUniqueViolation = "23505"

// Postgres is a job table on a shared PostgreSQL server.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with a pool and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Insert(ctx context.Context, job domain.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	job = withInsertDefaults(job)
	_, err := p.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Filename, string(job.Status), job.CreatedAt, job.UploadPath,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (domain.Job, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (p *Postgres) List(ctx context.Context) ([]domain.Job, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetStatus overwrites the status. An unknown id is not an error.
func (p *Postgres) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if _, err := p.pool.Exec(ctx, `UPDATE jobs SET status = $1 WHERE id = $2`, string(status), id); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (p *Postgres) ClaimNext(ctx context.Context) (*domain.Job, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	row := tx.QueryRow(ctx, `
		UPDATE jobs SET status = $1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $2
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		string(domain.JobStatusRunning), string(domain.JobStatusQueued),
	)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit empty claim: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queued job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return &job, nil
}

func scanPgJob(row pgx.Row) (domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	if err := row.Scan(&job.ID, &job.Filename, &status, &job.CreatedAt, &job.UploadPath); err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	return job, nil
}
