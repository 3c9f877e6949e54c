package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"cco/internal/cli"
	"cco/internal/updater"
	"cco/pkg/logging"
	ccostrings "cco/pkg/strings"

	"github.com/spf13/cobra"
)

const notifyTimeout = 5 * time.Second

// quietCommands never trigger the automatic update notice. The update
// commands report releases themselves, and login and logout change the
// credential the check would use.
var quietCommands = map[string]bool{
	"update":                  true,
	"login":                   true,
	"logout":                  true,
	"help":                    true,
	"completion":              true,
	cobra.ShellCompRequestCmd: true,
}

// maybeNotifyUpdate prints a one-line notice when the periodic check finds a
// newer release. Failures are logged at debug level and never reach the user.
func maybeNotifyUpdate(cmd *cobra.Command) {
	if !stderrIsTerminal() || isQuiet(cmd) {
		return
	}
	res, err := checkForNotice(cmd.Context(), time.Now())
	if err != nil {
		logging.Debug("Update", "Automatic update check skipped: %v", err)
		return
	}
	if res != nil {
		printNotice(cmd.ErrOrStderr(), res)
	}
}

func printNotice(w io.Writer, res *updater.CheckResult) {
	fmt.Fprintf(w, "\n%s cco %s is available (installed %s). Run 'cco update install' to upgrade.\n",
		cli.Warning("↑"), res.Latest, res.Current)
	if summary := ccostrings.Summarize(res.Notes, ccostrings.DefaultSummaryLen); summary != "" {
		fmt.Fprintf(w, "  %s\n", summary)
	}
}

func isQuiet(cmd *cobra.Command) bool {
	for c := cmd; c != nil && c.HasParent(); c = c.Parent() {
		if quietCommands[c.Name()] {
			return true
		}
	}
	return false
}

// checkForNotice returns the check result when the configured interval has
// elapsed and a newer release is available, and nil otherwise.
func checkForNotice(parent context.Context, now time.Time) (*updater.CheckResult, error) {
	env, err := loadEnvironment()
	if err != nil {
		return nil, err
	}
	st, err := env.stateFile().Load()
	if err != nil {
		return nil, err
	}
	if !updater.ShouldCheck(st.LastCheck, env.cfg.Releases.CheckInterval, now) {
		return nil, nil
	}
	// The release API needs a credential; never start a login from here.
	if _, err := env.tokens.Load(); err != nil {
		return nil, err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, notifyTimeout)
	defer cancel()

	svc, err := env.updateService(nil)
	if err != nil {
		return nil, err
	}
	res, err := svc.Check(ctx, "")
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, nil
	}
	return res, nil
}
