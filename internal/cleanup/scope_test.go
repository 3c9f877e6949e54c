package cleanup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_ReleaseOrder(t *testing.T) {
	var order []string
	s := NewScope("test")
	s.Add("first", func() error { order = append(order, "first"); return nil })
	s.Add("second", func() error { order = append(order, "second"); return nil })

	require.NoError(t, s.Release())
	assert.Equal(t, []string{"second", "first"}, order)

	// Idempotent.
	require.NoError(t, s.Release())
	assert.Len(t, order, 2)
}

func TestScope_Dismiss(t *testing.T) {
	ran := false
	s := NewScope("test")
	dismiss := s.Add("skip me", func() error { ran = true; return nil })
	dismiss()

	require.NoError(t, s.Release())
	assert.False(t, ran)
}

func TestScope_ErrorsAreJoined(t *testing.T) {
	errA := errors.New("a")
	ranB := false
	s := NewScope("test")
	s.Add("a", func() error { return errA })
	s.Add("b", func() error { ranB = true; return nil })

	err := s.Release()
	assert.ErrorIs(t, err, errA)
	assert.True(t, ranB)
}

func TestScope_RemoveFile(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept")
	removed := filepath.Join(dir, "removed")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(removed, []byte("x"), 0o600))

	s := NewScope("test")
	s.RemoveFile(removed)
	keep := s.RemoveFile(kept)
	s.RemoveFile(filepath.Join(dir, "missing"))
	keep()

	require.NoError(t, s.Release())
	assert.FileExists(t, kept)
	assert.NoFileExists(t, removed)
}

func TestScope_ReleasesOnPanic(t *testing.T) {
	ran := false
	func() {
		defer func() { _ = recover() }()
		s := NewScope("test")
		defer func() { _ = s.Release() }()
		s.Add("flag", func() error { ran = true; return nil })
		panic("boom")
	}()
	assert.True(t, ran)
}

func TestScope_AddAfterRelease(t *testing.T) {
	s := NewScope("test")
	require.NoError(t, s.Release())

	ran := false
	s.Add("late", func() error { ran = true; return nil })
	assert.True(t, ran)
}
