package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

func TestSetVersion(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
	if got := userAgent(); got != "cco/"+testVersion {
		t.Errorf("Expected user agent cco/%s, got %s", testVersion, got)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "cco" {
		t.Errorf("Expected Use to be 'cco', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}

	if !rootCmd.SilenceErrors {
		t.Error("Expected SilenceErrors to be true")
	}

	if rootCmd.PersistentPostRun == nil {
		t.Error("Expected the update notice hook to be registered")
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(versionTemplate)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	if err := testCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	expected := "cco version 1.0.0\n"
	if output := buf.String(); output != expected {
		t.Errorf("Expected version output %q, got %q", expected, output)
	}
}

func TestSubcommands(t *testing.T) {
	expected := map[string][]string{
		"version": nil,
		"login":   nil,
		"logout":  nil,
		"auth":    {"login", "logout", "status", "refresh"},
		"update":  {"check", "install", "config"},
	}

	found := make(map[string]*cobra.Command)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = c
	}

	for name, subs := range expected {
		c, ok := found[name]
		if !ok {
			t.Errorf("Expected subcommand %s to be registered", name)
			continue
		}
		have := make(map[string]bool)
		for _, sc := range c.Commands() {
			have[sc.Name()] = true
		}
		for _, sub := range subs {
			if !have[sub] {
				t.Errorf("Expected %s to have subcommand %s", name, sub)
			}
		}
	}
}

func TestIsQuiet(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"version"}, false},
		{[]string{"auth", "status"}, false},
		{[]string{"auth", "refresh"}, false},
		{[]string{"update", "check"}, true},
		{[]string{"update", "config", "show"}, true},
		{[]string{"login"}, true},
		{[]string{"logout"}, true},
		{[]string{"auth", "login"}, true},
		{[]string{"auth", "logout"}, true},
	}

	for _, tt := range tests {
		c, _, err := rootCmd.Find(tt.args)
		if err != nil {
			t.Fatalf("Find(%v) failed: %v", tt.args, err)
		}
		if got := isQuiet(c); got != tt.want {
			t.Errorf("isQuiet(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
	if isQuiet(rootCmd) {
		t.Error("Expected the root command not to be quiet")
	}
}
