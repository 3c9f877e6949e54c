package updater

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creativeprojects/go-selfupdate/update"
)

// replacer swaps the staged binary into the live path.
type replacer interface {
	replace(staged, live string, mode os.FileMode) error
	atomic() bool
}

// renameReplacer uses a single rename(2), which POSIX guarantees is atomic
// within one directory even while the old binary is running.
type renameReplacer struct{}

func (renameReplacer) atomic() bool { return true }

func (renameReplacer) replace(staged, live string, _ os.FileMode) error {
	if err := os.Rename(staged, live); err != nil {
		return err
	}
	syncDir(filepath.Dir(live))
	return nil
}

// applyReplacer delegates to go-selfupdate, which moves the running
// executable aside before renaming the new one in. Windows cannot rename
// over a running executable, so there is a short window with no binary at
// the live path.
type applyReplacer struct{}

func (applyReplacer) atomic() bool { return false }

func (applyReplacer) replace(staged, live string, mode os.FileMode) error {
	// #nosec G304 -- staged is written by this package next to the live binary
	f, err := os.Open(staged)
	if err != nil {
		return err
	}
	// update.Apply stages its own copy under the same name, so the handle
	// must be closed before it runs.
	data, readErr := readAllAndClose(f)
	if readErr != nil {
		return readErr
	}
	_ = os.Remove(staged)

	err = update.Apply(bytes.NewReader(data), update.Options{
		TargetPath: live,
		TargetMode: mode,
	})
	if err != nil {
		if rerr := update.RollbackError(err); rerr != nil {
			return fmt.Errorf("%w (moving the old binary back also failed: %v)", err, rerr)
		}
		return err
	}
	return nil
}

// syncDir flushes a rename to disk. Errors are ignored where directories
// cannot be synced.
func syncDir(dir string) {
	// #nosec G304 -- dir holds the live binary
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
