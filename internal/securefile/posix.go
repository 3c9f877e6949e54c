//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package securefile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	fileMode os.FileMode = 0o600
	dirMode  os.FileMode = 0o700
)

// posixPlatform enforces owner-only access with mode bits.
type posixPlatform struct {
	uid uint32
}

func newPlatform() (platform, error) {
	return &posixPlatform{uid: uint32(os.Geteuid())}, nil
}

func (p *posixPlatform) mkdir(dir string) error {
	return os.MkdirAll(dir, dirMode)
}

func (p *posixPlatform) restrict(path string) error {
	return os.Chmod(path, fileMode)
}

func (p *posixPlatform) verify(path string) error {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return &os.PathError{Op: "lstat", Path: path, Err: err}
	}

	if uint32(st.Mode)&unix.S_IFMT != unix.S_IFREG {
		return fmt.Errorf("%w: %s is not a regular file", ErrInsecure, path)
	}
	if st.Uid != p.uid {
		return fmt.Errorf("%w: %s is owned by uid %d", ErrInsecure, path, st.Uid)
	}
	if perm := uint32(st.Mode) & 0o777; perm&0o077 != 0 {
		return fmt.Errorf("%w: %s has mode %#o, want %#o", ErrInsecure, path, perm, fileMode)
	}
	return nil
}

func tryLockFile(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return false, err
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
