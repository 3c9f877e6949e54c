package securefile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	return s
}

func TestWriteFileReadFile(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	require.NoError(t, s.WriteFile(path, []byte(`{"a":1}`)))

	data, err := s.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	// Overwrite keeps the file owner-only and leaves no temp files behind.
	require.NoError(t, s.WriteFile(path, []byte(`{"a":2}`)))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "tokens.json", entries[0].Name())
}

func TestWriteFileSetsOwnerOnlyMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not meaningful on Windows")
	}
	s := newTestStore(t)
	dir := filepath.Join(t.TempDir(), "cco")
	path := filepath.Join(dir, "tokens.json")

	require.NoError(t, s.WriteFile(path, []byte("secret")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestReadFileRejectsInsecureMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not meaningful on Windows")
	}
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o600))
	require.NoError(t, os.Chmod(path, 0o644))

	_, err := s.ReadFile(path)
	assert.True(t, errors.Is(err, ErrInsecure), "expected ErrInsecure, got %v", err)
}

func TestReadFileRejectsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on Windows")
	}
	s := newTestStore(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "real.json")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o600))
	link := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.Symlink(target, link))

	_, err := s.ReadFile(link)
	assert.True(t, errors.Is(err, ErrInsecure), "expected ErrInsecure, got %v", err)
}

func TestReadFileMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "expected ErrNotExist, got %v", err)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, s.WriteFile(path, []byte("secret")))

	require.NoError(t, s.Remove(path))
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	assert.True(t, errors.Is(s.Remove(path), fs.ErrNotExist))
}

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json.lock")

	first, err := Lock(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = Lock(ctx, path)
	assert.True(t, errors.Is(err, ErrLocked), "expected ErrLocked, got %v", err)

	require.NoError(t, first.Unlock())

	second, err := Lock(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, second.Path())
	require.NoError(t, second.Unlock())
	// Unlocking twice is harmless.
	assert.NoError(t, second.Unlock())
}
