package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"cco/internal/cli"
	"cco/internal/version"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	original := rootCmd.Version
	SetVersion(v)
	t.Cleanup(func() { rootCmd.Version = original })
}

func TestVersionCommand(t *testing.T) {
	withVersion(t, "2025.11.2")

	code, out, errOut := runCLI(t, t.TempDir(), "version")
	if code != cli.ExitOK {
		t.Fatalf("Expected exit 0, got %d: %s", code, errOut)
	}
	if expected := "cco version 2025.11.2\n"; out != expected {
		t.Errorf("Expected output %q, got %q", expected, out)
	}
}

func TestVersionFlagMatchesCommand(t *testing.T) {
	withVersion(t, "2025.11.2-rc.1")

	_, fromCmd, _ := runCLI(t, t.TempDir(), "version")
	_, fromFlag, _ := runCLI(t, t.TempDir(), "--version")
	if fromCmd != fromFlag {
		t.Errorf("Expected `version` and `--version` to agree, got %q and %q", fromCmd, fromFlag)
	}
}

// The post-install self-check accepts a binary only if its --version output
// contains the core of the release version.
func TestVersionFlagSatisfiesSelfCheck(t *testing.T) {
	for _, v := range []string{"2025.11.2", "v2025.11.2", "2025.12.0-beta.3", "v2026.1.1+build.7"} {
		t.Run(v, func(t *testing.T) {
			withVersion(t, v)

			code, out, errOut := runCLI(t, t.TempDir(), "--version")
			if code != cli.ExitOK {
				t.Fatalf("Expected exit 0, got %d: %s", code, errOut)
			}
			want := version.MustParse(v).Core()
			if !strings.Contains(out, want) {
				t.Errorf("Expected --version output %q to contain %q", out, want)
			}
		})
	}
}

func TestVersionCommandJSON(t *testing.T) {
	withVersion(t, "2025.11.2")

	code, out, errOut := runCLI(t, t.TempDir(), "version", "-o", "json")
	if code != cli.ExitOK {
		t.Fatalf("Expected exit 0, got %d: %s", code, errOut)
	}
	var view versionView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", out, err)
	}
	if view.Version != "2025.11.2" || view.UserAgent != "cco/2025.11.2" {
		t.Errorf("Unexpected version view %+v", view)
	}
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	code, out := execute(t, t.TempDir(), "version", "extra")
	if code != cli.ExitGeneral {
		t.Errorf("Expected exit %d, got %d: %s", cli.ExitGeneral, code, out)
	}
}
