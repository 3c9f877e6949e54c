package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"cco/internal/version"
)

// DefaultSelfCheckTimeout bounds the post-install self-check.
const DefaultSelfCheckTimeout = 10 * time.Second

// SelfChecker decides whether a freshly installed binary works.
type SelfChecker interface {
	Check(ctx context.Context, binaryPath, expectedVersion string) error
}

// CommandChecker runs the installed binary with --version.
type CommandChecker struct {
	Timeout time.Duration
	// RequireVersion also demands that the output mentions the target version.
	RequireVersion bool
}

// Check runs binaryPath --version and fails on a non-zero exit or timeout.
func (c CommandChecker) Check(ctx context.Context, binaryPath, expectedVersion string) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultSelfCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- binaryPath is the binary this process just installed
	cmd := exec.CommandContext(ctx, binaryPath, "--version")
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s --version did not finish within %s", binaryPath, timeout)
	}
	if err != nil {
		return fmt.Errorf("%s --version failed: %w: %s", binaryPath, err, tail(out.String()))
	}

	if c.RequireVersion && expectedVersion != "" {
		want := expectedVersion
		if v, perr := version.Parse(expectedVersion); perr == nil {
			want = v.Core()
		}
		if !strings.Contains(out.String(), want) {
			return fmt.Errorf("installed binary reports %q, expected version %s", tail(out.String()), want)
		}
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 200
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
