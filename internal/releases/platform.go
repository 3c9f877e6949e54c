package releases

import (
	"fmt"
	"runtime"
)

// Platform identifiers used by the release API.
const (
	DarwinArm64   = "darwin-arm64"
	DarwinX86_64  = "darwin-x86_64"
	LinuxX86_64   = "linux-x86_64"
	LinuxAarch64  = "linux-aarch64"
	WindowsX86_64 = "windows-x86_64"
)

// DetectPlatform returns the release platform of the running binary.
func DetectPlatform() (string, error) {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor maps a GOOS/GOARCH pair to a release platform.
func PlatformFor(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "darwin/arm64":
		return DarwinArm64, nil
	case "darwin/amd64":
		return DarwinX86_64, nil
	case "linux/amd64":
		return LinuxX86_64, nil
	case "linux/arm64":
		return LinuxAarch64, nil
	case "windows/amd64":
		return WindowsX86_64, nil
	default:
		return "", fmt.Errorf("unsupported platform %s/%s", goos, goarch)
	}
}
