package cmd

import (
	"fmt"

	"cco/internal/cli"

	"github.com/spf13/cobra"
)

// versionTemplate renders `cco --version`. The post-install self-check runs
// the new binary with --version and looks for the release version in this
// line, so it has to keep printing the bare version.
const versionTemplate = `{{printf "cco version %s\n" .Version}}`

var versionOutput cli.OutputFlags

// versionView is the structured form of `cco version`.
type versionView struct {
	Version   string `json:"version" yaml:"version"`
	UserAgent string `json:"userAgent" yaml:"userAgent"`
}

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cco",
		Long: `Print the installed cco version.

The same line is printed by cco --version. Use --output json or yaml for
scripting.`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}
	cli.RegisterOutputFlags(versionCmd, &versionOutput)
	return versionCmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	format, err := versionOutput.Format()
	if err != nil {
		return err
	}
	if format.Structured() {
		return cli.PrintStructured(cmd.OutOrStdout(), format, versionView{Version: GetVersion(), UserAgent: userAgent()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cco version %s\n", GetVersion())
	return nil
}
