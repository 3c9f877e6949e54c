package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"cco/internal/cli"
	"cco/pkg/logging"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

// rootCmd represents the base command for the cco application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cco",
	Short: "Command line client for the cco service",
	Long: `cco signs you in to the VisiQuate identity provider and keeps itself
up to date from the authenticated release API.

Every downloaded release is checked against its published checksum before
the installed binary is touched, and a failed update restores the previous
version.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	// Errors are printed by Execute together with a remediation hint.
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if debug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
		selfupdate.SetLogger(logging.Printer{Subsystem: "SelfUpdate"})
	},
}

// Terminal checks, replaced in tests.
var (
	stdinIsTerminal  = func() bool { return cli.IsInteractive(os.Stdin) }
	stderrIsTerminal = func() bool { return cli.IsInteractive(os.Stderr) }
)

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

func userAgent() string {
	return "cco/" + GetVersion()
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run executes the root command and returns the process exit code.
func run(ctx context.Context) int {
	rootCmd.SetVersionTemplate(versionTemplate)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd, err)
	}
	return cli.ExitCode(err)
}

func printError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%s %v\n", cli.Failure("Error:"), err)
	if hint := cli.Hint(err); hint != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(hint))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "",
		"Configuration directory (default $CCO_CONFIG_PATH or ~/.config/cco)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Assigned here because the hook reaches back to rootCmd.
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		maybeNotifyUpdate(cmd)
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newUpdateCmd())
}
