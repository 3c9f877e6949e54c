//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package securefile

import (
	"fmt"
	"os"
	"runtime"
)

func newPlatform() (platform, error) {
	return nil, fmt.Errorf("%w (%s)", ErrUnsupported, runtime.GOOS)
}

func tryLockFile(*os.File) (bool, error) {
	return false, ErrUnsupported
}

func unlockFile(*os.File) error {
	return ErrUnsupported
}
