package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptiond/internal/domain"
	"transcriptiond/internal/jobs"
	"transcriptiond/internal/store"
)

type failingStore struct{ err error }

func (f failingStore) Insert(context.Context, domain.Job) error { return f.err }

func openStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSubmitSavesAndQueues(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	uploadsDir := t.TempDir()
	events := jobs.NewEventBus(10)
	svc := NewService(db, uploadsDir, events, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 900, time.UTC) }

	job, err := svc.Submit(ctx, "../talk.m4a", strings.NewReader("media"))
	require.NoError(t, err)

	assert.Equal(t, "talk.m4a", job.Filename)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, filepath.Join(uploadsDir, job.ID, "talk.m4a"), job.UploadPath)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), job.CreatedAt)

	content, err := os.ReadFile(job.UploadPath)
	require.NoError(t, err)
	assert.Equal(t, "media", string(content))

	stored, err := db.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, stored)

	got := events.Since(0)
	require.Len(t, got, 1)
	assert.Equal(t, domain.JobStatusQueued, got[0].Status)
}

func TestSubmitIDsFollowSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	svc := NewService(db, t.TempDir(), nil, nil)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var submitted []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		job, err := svc.Submit(ctx, name, strings.NewReader(name))
		require.NoError(t, err)
		submitted = append(submitted, job.ID)
	}

	for _, want := range submitted {
		claimed, err := db.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, want, claimed.ID)
	}
}

func TestSubmitRemovesUploadWhenInsertFails(t *testing.T) {
	uploadsDir := t.TempDir()
	svc := NewService(failingStore{err: store.ErrDuplicateID}, uploadsDir, nil, nil)
	svc.newID = func() (string, error) { return "fixed-id", nil }

	_, err := svc.Submit(context.Background(), "a.mp3", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicateID))
	assert.NoDirExists(t, filepath.Join(uploadsDir, "fixed-id"))
}

func TestSubmitRejectsEmptyFilename(t *testing.T) {
	svc := NewService(failingStore{}, t.TempDir(), nil, nil)
	_, err := svc.Submit(context.Background(), "  ", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrEmptyFilename)
}

func TestSubmitFile(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	src := filepath.Join(t.TempDir(), "memo.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0o644))

	svc := NewService(db, t.TempDir(), nil, nil)
	job, err := svc.SubmitFile(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "memo.wav", job.Filename)
	assert.FileExists(t, src, "source must be left in place")

	_, err = svc.SubmitFile(ctx, filepath.Dir(src))
	assert.Error(t, err)
}
