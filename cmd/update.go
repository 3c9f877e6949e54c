package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cco/internal/cli"
	"cco/internal/config"
	"cco/internal/updater"
	ccostrings "cco/pkg/strings"

	"github.com/spf13/cobra"
)

var (
	updateChannel string
	updateVersion string
	updateYes     bool
	updateOutput  cli.OutputFlags
)

// checkView is the structured form of `cco update check`.
type checkView struct {
	Current    string     `json:"current" yaml:"current"`
	Latest     string     `json:"latest" yaml:"latest"`
	Available  bool       `json:"available" yaml:"available"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty" yaml:"releasedAt,omitempty"`
	Notes      string     `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// configView is the structured form of `cco update config show`.
type configView struct {
	Settings    map[string]string `json:"settings" yaml:"settings"`
	APIURL      string            `json:"apiURL" yaml:"apiURL"`
	LastCheck   *time.Time        `json:"lastCheck,omitempty" yaml:"lastCheck,omitempty"`
	LastUpdate  *time.Time        `json:"lastUpdate,omitempty" yaml:"lastUpdate,omitempty"`
	LastVersion string            `json:"lastVersion,omitempty" yaml:"lastVersion,omitempty"`
	ConfigFile  string            `json:"configFile" yaml:"configFile"`
}

// errConfirmationRequired is returned when an install needs consent that a
// non-interactive session cannot give.
var errConfirmationRequired = errors.New("refusing to install without confirmation; pass --yes to proceed non-interactively")

func newUpdateCmd() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and install cco updates",
		Long: `Check for and install verified cco releases.

Releases are downloaded from short-lived links issued by the release API,
checked against the published SHA-256 digest and installed with a backup
of the current binary. A release that fails its self-check is rolled back.

Examples:
  cco update check
  cco update install --yes
  cco update install --version 2025.11.2
  cco update config set channel beta`,
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Args:  cobra.NoArgs,
		RunE:  runUpdateCheck,
	}
	checkCmd.Flags().StringVar(&updateChannel, "channel", "", "Release channel to check (defaults to the configured channel)")
	cli.RegisterOutputFlags(checkCmd, &updateOutput)

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Download and install a release",
		Args:  cobra.NoArgs,
		RunE:  runUpdateInstall,
	}
	installCmd.Flags().StringVar(&updateChannel, "channel", "", "Release channel to install from (defaults to the configured channel)")
	installCmd.Flags().StringVar(&updateVersion, "version", "", "Install this exact version instead of the latest")
	installCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "Do not ask for confirmation")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change update settings",
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show update settings and history",
		Args:  cobra.NoArgs,
		RunE:  runUpdateConfigShow,
	}
	cli.RegisterOutputFlags(showCmd, &updateOutput)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change an update setting",
		Long: fmt.Sprintf(`Change an update setting and save it to config.yaml.

Keys: %s`, strings.Join(config.SettingKeys(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: runUpdateConfigSet,
	})

	updateCmd.AddCommand(checkCmd, installCmd, configCmd)
	return updateCmd
}

func runUpdateCheck(cmd *cobra.Command, args []string) error {
	format, err := updateOutput.Format()
	if err != nil {
		return err
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	svc, err := env.updateService(nil)
	if err != nil {
		return err
	}

	var res *updater.CheckResult
	err = withLogin(cmd, env, func() error {
		res, err = svc.Check(cmd.Context(), updateChannel)
		return err
	})
	if err != nil {
		return err
	}
	return printCheckResult(cmd, format, res)
}

func printCheckResult(cmd *cobra.Command, format cli.OutputFormat, res *updater.CheckResult) error {
	out := cmd.OutOrStdout()
	if format.Structured() {
		view := checkView{Current: res.Current, Latest: res.Latest, Available: res.Available, Notes: res.Notes}
		if res.Metadata != nil {
			view.ReleasedAt = res.Metadata.ReleasedAt
		}
		return cli.PrintStructured(out, format, view)
	}

	rows := [][2]string{
		{"Current", res.Current},
		{"Latest", res.Latest},
	}
	if res.Metadata != nil && res.Metadata.ReleasedAt != nil {
		rows = append(rows, [2]string{"Released", res.Metadata.ReleasedAt.Local().Format(time.RFC1123)})
	}
	cli.PrintKeyValues(out, format, updateOutput.NoHeaders, rows)

	if !res.Available {
		fmt.Fprintf(out, "%s cco is up to date\n", cli.Success("✓"))
		return nil
	}
	fmt.Fprintf(out, "%s cco %s is available. Run 'cco update install' to upgrade.\n", cli.Warning("↑"), res.Latest)
	if notes := strings.TrimSpace(res.Notes); notes != "" {
		fmt.Fprintf(out, "\nRelease notes:\n%s\n", notes)
	}
	return nil
}

func runUpdateInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	spin := cli.NewSpinner(cmd.ErrOrStderr(), cli.IsInteractive(os.Stderr), "Downloading...")
	svc, err := env.updateService(func(written, total int64) {
		if total > 0 {
			spin.Update(fmt.Sprintf("Downloading %s of %s", cli.FormatBytes(written), cli.FormatBytes(total)))
		} else {
			spin.Update(fmt.Sprintf("Downloading %s", cli.FormatBytes(written)))
		}
	})
	if err != nil {
		return err
	}

	target := updateVersion
	if target == "" {
		var res *updater.CheckResult
		err = withLogin(cmd, env, func() error {
			res, err = svc.Check(ctx, updateChannel)
			return err
		})
		if err != nil {
			return err
		}
		if !res.Available {
			fmt.Fprintf(out, "%s cco %s is up to date\n", cli.Success("✓"), res.Current)
			return nil
		}
		target = res.Latest
		if summary := ccostrings.Summarize(res.Notes, ccostrings.DefaultSummaryLen); summary != "" {
			fmt.Fprintf(out, "cco %s: %s\n", target, summary)
		}
	}

	if !updateYes {
		if !stdinIsTerminal() {
			return errConfirmationRequired
		}
		ok, err := cli.Confirm(cmd.InOrStdin(), out, fmt.Sprintf("Install cco %s over %s?", target, GetVersion()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Update cancelled.")
			return nil
		}
	}

	// With --version nothing has touched the release API yet.
	var res *updater.Result
	err = withLogin(cmd, env, func() error {
		spin.Start()
		res, err = svc.Apply(ctx, updateChannel, target)
		if err != nil {
			spin.Fail("Update failed")
			return err
		}
		spin.Stop("")
		return nil
	})
	if err != nil {
		return err
	}

	if res.Skipped {
		fmt.Fprintf(out, "%s cco %s is already installed\n", cli.Success("✓"), res.Version)
		return nil
	}
	fmt.Fprintf(out, "%s Installed cco %s\n", cli.Success("✓"), res.Version)
	if res.NonAtomic {
		fmt.Fprintf(out, "%s The binary was replaced in place; restart any running cco processes.\n", cli.Warning("!"))
	}
	if res.BackupPath != "" {
		fmt.Fprintf(out, "Previous version kept at %s\n", res.BackupPath)
	}
	return nil
}

func runUpdateConfigShow(cmd *cobra.Command, args []string) error {
	format, err := updateOutput.Format()
	if err != nil {
		return err
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	settings := make(map[string]string, len(config.SettingKeys()))
	rows := make([][]string, 0, len(config.SettingKeys()))
	for _, key := range config.SettingKeys() {
		v, err := env.cfg.Get(key)
		if err != nil {
			return err
		}
		settings[key] = v
		rows = append(rows, []string{key, v})
	}

	st, err := env.stateFile().Load()
	if err != nil {
		return err
	}

	if format.Structured() {
		view := configView{
			Settings:    settings,
			APIURL:      env.cfg.Releases.APIURL,
			LastVersion: st.LastVersion,
			ConfigFile:  config.FilePath(env.configDir),
		}
		if !st.LastCheck.IsZero() {
			view.LastCheck = &st.LastCheck
		}
		if !st.LastUpdate.IsZero() {
			view.LastUpdate = &st.LastUpdate
		}
		return cli.PrintStructured(out, format, view)
	}

	cli.PrintTable(out, format, updateOutput.NoHeaders, []string{"SETTING", "VALUE"}, rows)
	cli.PrintKeyValues(out, format, updateOutput.NoHeaders, [][2]string{
		{"Release API", env.cfg.Releases.APIURL},
		{"Last check", formatWhen(st.LastCheck)},
		{"Last update", formatLastUpdate(st)},
		{"Config file", config.FilePath(env.configDir)},
	})
	return nil
}

func runUpdateConfigSet(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	key, value := args[0], args[1]
	if err := env.cfg.Set(key, value); err != nil {
		return err
	}
	if err := config.SaveConfig(env.configDir, env.cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s set to %s\n", cli.Success("✓"), key, value)
	return nil
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC1123)
}

func formatLastUpdate(st config.State) string {
	if st.LastUpdate.IsZero() {
		return "never"
	}
	if st.LastVersion == "" {
		return formatWhen(st.LastUpdate)
	}
	return fmt.Sprintf("%s (%s)", formatWhen(st.LastUpdate), st.LastVersion)
}
