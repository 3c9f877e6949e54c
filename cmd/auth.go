package cmd

import (
	"fmt"
	"time"

	"cco/internal/cli"

	"github.com/spf13/cobra"
)

var authStatusOutput cli.OutputFlags

// authStatusView is the structured form of `cco auth status`.
type authStatusView struct {
	LoggedIn        bool       `json:"loggedIn" yaml:"loggedIn"`
	Expired         bool       `json:"expired,omitempty" yaml:"expired,omitempty"`
	Email           string     `json:"email,omitempty" yaml:"email,omitempty"`
	Name            string     `json:"name,omitempty" yaml:"name,omitempty"`
	Subject         string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	HasRefreshToken bool       `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	CredentialPath  string     `json:"credentialPath" yaml:"credentialPath"`
}

func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication for cco",
		Long: `Manage the stored cco credential.

Examples:
  cco auth login      # Sign in (same as cco login)
  cco auth status     # Show who is signed in and when the token expires
  cco auth refresh    # Exchange the refresh token for a new access token
  cco auth logout     # Remove the credential (same as cco logout)`,
	}

	authCmd.AddCommand(newLoginCmd())
	authCmd.AddCommand(newLogoutCmd())
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Args:  cobra.NoArgs,
		RunE:  runAuthStatus,
	}
	cli.RegisterOutputFlags(statusCmd, &authStatusOutput)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		Args:  cobra.NoArgs,
		RunE:  runAuthRefresh,
	})
	return authCmd
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	format, err := authStatusOutput.Format()
	if err != nil {
		return err
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	st, err := env.tokens.Status()
	if err != nil {
		if format.Structured() {
			if perr := cli.PrintStructured(out, format, authStatusView{CredentialPath: env.tokens.Path()}); perr != nil {
				return perr
			}
		} else {
			fmt.Fprintf(out, "Status: %s\n", cli.Warning("Not logged in"))
		}
		return err
	}

	if format.Structured() {
		expiresAt := st.ExpiresAt
		return cli.PrintStructured(out, format, authStatusView{
			LoggedIn:        true,
			Expired:         st.Expired,
			Email:           st.Email,
			Name:            st.Name,
			Subject:         st.Subject,
			ExpiresAt:       &expiresAt,
			HasRefreshToken: st.HasRefreshToken,
			CredentialPath:  env.tokens.Path(),
		})
	}

	status := cli.Success("Authenticated")
	if st.Expired {
		status = cli.Warning("Expired")
	}
	refresh := cli.Success("Available")
	if !st.HasRefreshToken {
		refresh = cli.Warning("Not available (log in again on expiry)")
	}

	rows := [][2]string{{"Status", status}}
	if st.Email != "" {
		rows = append(rows, [2]string{"Account", st.Email})
	}
	if st.Name != "" {
		rows = append(rows, [2]string{"Name", st.Name})
	}
	if st.Subject != "" {
		rows = append(rows, [2]string{"Subject", st.Subject})
	}
	rows = append(rows,
		[2]string{"Expires", formatExpiry(st.ExpiresAt, time.Now())},
		[2]string{"Refresh", refresh},
		[2]string{"Credential", env.tokens.Path()},
	)
	cli.PrintKeyValues(out, format, authStatusOutput.NoHeaders, rows)
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	cred, err := env.tokens.Refresh(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Token refreshed, expires %s\n",
		cli.Success("✓"), formatExpiry(cred.ExpiresAt, time.Now()))
	return nil
}

func formatExpiry(at, now time.Time) string {
	d := at.Sub(now).Round(time.Second)
	if d <= 0 {
		return fmt.Sprintf("%s (expired %s ago)", at.Local().Format(time.RFC1123), -d)
	}
	return fmt.Sprintf("%s (in %s)", at.Local().Format(time.RFC1123), d)
}
