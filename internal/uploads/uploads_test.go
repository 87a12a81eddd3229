package uploads

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCleaner(root string) (*Cleaner, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewCleaner(root, logger), &buf
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRemoveUploadDeletesFileAndEmptyParent(t *testing.T) {
	root := t.TempDir()
	upload := filepath.Join(root, "job-1", "clip.mp3")
	writeFile(t, upload, "media")

	c, _ := newTestCleaner(root)
	c.RemoveUpload(upload, "job-1")

	assert.NoFileExists(t, upload)
	assert.NoDirExists(t, filepath.Join(root, "job-1"))
	assert.DirExists(t, root)
}

func TestRemoveUploadKeepsNonEmptyParent(t *testing.T) {
	root := t.TempDir()
	upload := filepath.Join(root, "job-1", "clip.mp3")
	sibling := filepath.Join(root, "job-1", "notes.txt")
	writeFile(t, upload, "media")
	writeFile(t, sibling, "keep")

	c, _ := newTestCleaner(root)
	c.RemoveUpload(upload, "job-1")

	assert.NoFileExists(t, upload)
	assert.FileExists(t, sibling)
}

func TestRemoveUploadNeverRemovesRoot(t *testing.T) {
	root := t.TempDir()
	upload := filepath.Join(root, "flat.wav")
	writeFile(t, upload, "media")

	c, _ := newTestCleaner(root)
	c.RemoveUpload(upload, "job-1")

	assert.NoFileExists(t, upload)
	assert.DirExists(t, root)
}

func TestRemoveUploadRefusesOutsideRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "uploads")
	require.NoError(t, os.MkdirAll(root, 0o755))
	outside := filepath.Join(base, "secret.txt")
	writeFile(t, outside, "do not delete")

	c, logs := newTestCleaner(root)
	c.RemoveUpload(outside, "job-9")
	c.RemoveUpload(filepath.Join(root, "..", "secret.txt"), "job-9")

	assert.FileExists(t, outside)
	assert.Contains(t, logs.String(), "refusing to remove upload outside uploads dir")
	assert.Contains(t, logs.String(), "job_id=job-9")
}

func TestRemoveUploadRefusesSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "uploads")
	outsideDir := filepath.Join(base, "elsewhere")
	target := filepath.Join(outsideDir, "victim.mp3")
	writeFile(t, target, "precious")
	require.NoError(t, os.MkdirAll(root, 0o755))

	link := filepath.Join(root, "job-1")
	if err := os.Symlink(outsideDir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	c, logs := newTestCleaner(root)
	c.RemoveUpload(filepath.Join(link, "victim.mp3"), "job-1")

	assert.FileExists(t, target)
	assert.Contains(t, logs.String(), "refusing")
}

func TestRemoveUploadMissingFileIsQuiet(t *testing.T) {
	root := t.TempDir()
	c, logs := newTestCleaner(root)
	c.RemoveUpload(filepath.Join(root, "job-1", "gone.mp3"), "job-1")
	c.RemoveUpload("", "job-2")
	assert.Empty(t, logs.String())
}

func TestRemoveUploadWarnsOnDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "job-1", "nested")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	c, logs := newTestCleaner(root)
	c.RemoveUpload(dir, "job-1")

	assert.DirExists(t, dir)
	assert.Contains(t, logs.String(), "not a file")
}

func TestSaveStoresUnderJobDir(t *testing.T) {
	root := t.TempDir()
	path, err := Save(root, "job-1", "../../etc/passwd.mp3", strings.NewReader("media"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "job-1", "passwd.mp3"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "media", string(content))
}

func TestSaveRejectsBadJobID(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := Save(root, id, "x.mp3", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidJobID, "id %q", id)
	}
}

func TestSaveDoesNotOverwrite(t *testing.T) {
	root := t.TempDir()
	_, err := Save(root, "job-1", "a.mp3", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = Save(root, "job-1", "a.mp3", strings.NewReader("second"))
	assert.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSaveRemovesPartialFile(t *testing.T) {
	root := t.TempDir()
	_, err := Save(root, "job-1", "a.mp3", failingReader{})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "job-1", "a.mp3"))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"clip.mp3":          "clip.mp3",
		"dir/clip.mp3":      "clip.mp3",
		`C:\Users\me\a.wav`: "a.wav",
		"..":                "upload",
		"":                  "upload",
		"  spaced.ogg ":     "spaced.ogg",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}
