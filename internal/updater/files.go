package updater

import (
	"fmt"
	"io"
	"os"
)

func readAllAndClose(f *os.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return data, err
}

// copyFile copies src to dst with mode and fsyncs it. A stale dst is
// replaced.
func copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 -- src is the live binary
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale %s: %w", dst, err)
	}
	// #nosec G304 -- dst is derived from the live binary path
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// The umask may have narrowed the mode on create.
	return os.Chmod(dst, mode)
}

// writeExecutable writes r to path with mode 0755 and fsyncs it.
func writeExecutable(path string, r io.Reader) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale %s: %w", path, err)
	}
	// #nosec G304 -- path is the staging file next to the live binary
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// #nosec G302 -- the installed binary must be executable by everyone
	return os.Chmod(path, 0o755)
}
