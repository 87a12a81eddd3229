package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptiond/internal/domain"
)

func openTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func queuedJob(id string, createdAt time.Time) domain.Job {
	return domain.Job{
		ID:         id,
		Filename:   id + ".mp3",
		Status:     domain.JobStatusQueued,
		CreatedAt:  createdAt,
		UploadPath: "/uploads/" + id + "/" + id + ".mp3",
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, path := openTestSQLite(t)
	require.NoError(t, s.Insert(ctx, queuedJob("a", time.Now())))

	again, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer again.Close()

	jobs, err := again.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestOpenSelectsBackendByLocation(t *testing.T) {
	assert.True(t, isPostgresURL("postgres://u:p@localhost/db"))
	assert.True(t, isPostgresURL("PostgreSQL://localhost/db"))
	assert.False(t, isPostgresURL("/var/lib/transcriptiond/jobs.db"))
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)

	require.NoError(t, s.Insert(ctx, queuedJob("dup", time.Now())))
	err := s.Insert(ctx, domain.Job{ID: "dup", Filename: "other.wav", UploadPath: "/x"})
	require.ErrorIs(t, err, ErrDuplicateID)

	got, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "dup.mp3", got.Filename, "original record must not be overwritten")
}

func TestDuplicateKeyIgnoresOtherConstraints(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	require.NoError(t, s.Insert(ctx, queuedJob("a", time.Now())))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ('b', NULL, 'queued', '2026-01-01T00:00:00Z', '')`)
	require.Error(t, err)
	assert.False(t, isDuplicateKey(err), "NOT NULL violation reported as duplicate: %v", err)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ('a', 'x.mp3', 'queued', '2026-01-01T00:00:00Z', '')`)
	require.Error(t, err)
	assert.True(t, isDuplicateKey(err), "primary key conflict not detected: %v", err)
}

func TestListOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, queuedJob("late", t0.Add(2*time.Second))))
	require.NoError(t, s.Insert(ctx, queuedJob("early", t0)))
	require.NoError(t, s.Insert(ctx, queuedJob("middle", t0.Add(time.Second))))

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"early", "middle", "late"}, ids(jobs))
	assert.Equal(t, t0, jobs[0].CreatedAt)
}

func TestInsertTruncatesToSeconds(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 987654321, time.FixedZone("X", 3600))

	require.NoError(t, s.Insert(ctx, queuedJob("a", ts)))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), got.CreatedAt)
}

func TestGetUnknownID(t *testing.T) {
	s, _ := openTestSQLite(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	require.NoError(t, s.Insert(ctx, queuedJob("a", time.Now())))

	require.NoError(t, s.SetStatus(ctx, "missing", domain.JobStatusDone))

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusQueued, jobs[0].Status)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	s, _ := openTestSQLite(t)
	assert.Error(t, s.SetStatus(context.Background(), "a", domain.JobStatus("paused")))
}

func TestClaimNextEmpty(t *testing.T) {
	s, _ := openTestSQLite(t)
	job, err := s.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextIsFIFOAndMarksRunning(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, queuedJob("b", t0.Add(time.Second))))
	require.NoError(t, s.Insert(ctx, queuedJob("a", t0)))

	first, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, domain.JobStatusRunning, first.Status)

	stored, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, stored.Status)

	second, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "b", second.ID)

	none, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestClaimNextBreaksTiesByID(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, queuedJob("job-2", t0)))
	require.NoError(t, s.Insert(ctx, queuedJob("job-1", t0)))

	job, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
}

func TestClaimNextSkipsNonQueued(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, queuedJob("done", t0)))
	require.NoError(t, s.SetStatus(ctx, "done", domain.JobStatusDone))
	require.NoError(t, s.Insert(ctx, queuedJob("failed", t0.Add(time.Second))))
	require.NoError(t, s.SetStatus(ctx, "failed", domain.JobStatusFailed))
	require.NoError(t, s.Insert(ctx, queuedJob("next", t0.Add(2*time.Second))))

	job, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "next", job.ID)
}

// Separate handles on one file stand in for separate processes.
func TestClaimNextConcurrentHandlesClaimOnce(t *testing.T) {
	ctx := context.Background()
	s, path := openTestSQLite(t)
	require.NoError(t, s.Insert(ctx, queuedJob("only", time.Now())))

	const claimers = 8
	handles := make([]*SQLite, claimers)
	for i := range handles {
		h, err := OpenSQLite(ctx, path)
		require.NoError(t, err)
		defer h.Close()
		handles[i] = h
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan *domain.Job, claimers)
		errs    = make(chan error, claimers)
	)
	for _, h := range handles {
		wg.Add(1)
		go func(h *SQLite) {
			defer wg.Done()
			<-start
			job, err := h.ClaimNext(ctx)
			if err != nil {
				errs <- err
				return
			}
			results <- job
		}(h)
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("claim error: %v", err)
	}
	claimed := 0
	empty := 0
	for job := range results {
		if job == nil {
			empty++
			continue
		}
		claimed++
		assert.Equal(t, "only", job.ID)
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, claimers-1, empty)
}

func TestClaimNextConcurrentDrainsEachJobOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, s.Insert(ctx, queuedJob(fmt.Sprintf("job-%02d", i), t0.Add(time.Duration(i)*time.Second))))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := s.ClaimNext(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}

func ids(jobs []domain.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
