// Package securefile stores small secret files so that only the current user
// can read or write them.
//
// Each supported platform family provides its own enforcement: POSIX mode
// bits verified with lstat, or a protected owner-only DACL on Windows. A
// platform without any enforcement fails in New instead of writing an
// unprotected file.
package securefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrInsecure is returned when a file is accessible to anyone but its owner.
	ErrInsecure = errors.New("file is accessible by other users")
	// ErrUnsupported is returned on platforms without owner-only enforcement.
	ErrUnsupported = errors.New("secure file storage is not supported on this platform")
	// ErrLocked is returned when an advisory lock could not be acquired in time.
	ErrLocked = errors.New("file is locked by another process")
)

const lockRetryInterval = 50 * time.Millisecond

// Store reads and writes owner-only files.
type Store interface {
	// EnsureDir creates dir, and any missing parents, restricted to the owner.
	EnsureDir(dir string) error
	// WriteFile atomically replaces path with data and verifies the result is
	// owner-only. A verification failure is returned as ErrInsecure.
	WriteFile(path string, data []byte) error
	// ReadFile returns the content of path after verifying it is owner-only.
	ReadFile(path string) ([]byte, error)
	// Remove overwrites path with zeros and deletes it.
	Remove(path string) error
	// Verify checks that path is a regular file accessible only by its owner.
	Verify(path string) error
}

// New returns the Store for the running platform.
func New() (Store, error) {
	p, err := newPlatform()
	if err != nil {
		return nil, err
	}
	return &fileStore{platform: p}, nil
}

// platform is the per-OS enforcement mechanism.
type platform interface {
	mkdir(dir string) error
	restrict(path string) error
	verify(path string) error
}

type fileStore struct {
	platform platform
}

func (s *fileStore) EnsureDir(dir string) error {
	if err := s.platform.mkdir(dir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func (s *fileStore) Verify(path string) error {
	return s.platform.verify(path)
}

func (s *fileStore) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	// Restrict before the rename so the final path is never readable by others.
	if err := s.platform.restrict(tmpName); err != nil {
		return fmt.Errorf("%w: failed to restrict %s: %v", ErrInsecure, tmpName, err)
	}
	if err := s.platform.verify(tmpName); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	committed = true
	syncDir(dir)

	return s.platform.verify(path)
}

func (s *fileStore) ReadFile(path string) ([]byte, error) {
	if err := s.platform.verify(path); err != nil {
		return nil, err
	}
	// #nosec G304 -- path is the configured credential location
	return os.ReadFile(path)
}

func (s *fileStore) Remove(path string) error {
	// #nosec G304 -- path is the configured credential location
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	if info, statErr := f.Stat(); statErr == nil && info.Mode().IsRegular() {
		_, _ = io.CopyN(f, zeroReader{}, info.Size())
		_ = f.Sync()
	}
	_ = f.Close()

	return os.Remove(path)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// syncDir flushes directory metadata so a completed rename survives a crash.
// Not every platform supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	// #nosec G304 -- dir is derived from the configured path
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// FileLock is an exclusive advisory lock held on a lock file.
type FileLock struct {
	f    *os.File
	path string
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Unlock releases the lock. The lock file itself is left in place so that
// concurrent lockers always contend on the same inode.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// Lock acquires an exclusive advisory lock on path, creating it if needed.
// It retries until ctx is done, then returns ErrLocked.
func Lock(ctx context.Context, path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	// #nosec G304 -- lock path is derived from a configured location
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	for {
		acquired, err := tryLockFile(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if acquired {
			return &FileLock{f: f, path: path}, nil
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, path, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}
