package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cco/internal/cli"
	"cco/internal/deviceflow"
	"cco/internal/tokenstore"
	"cco/pkg/logging"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with the device authorization flow",
		Long: `Sign in to cco.

cco prints a short code and a URL. Open the URL on any device, enter the
code and approve the request; cco waits for the approval and stores the
issued credential in owner-only storage.

Examples:
  cco login
  cco auth login`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		Long: `Remove the stored credential.

The refresh token is revoked at the identity provider when it supports
revocation. The local credential is deleted even if revocation fails.`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	return loginInteractive(cmd, env)
}

// loginInteractive runs the device flow against env and stores the issued
// credential.
func loginInteractive(cmd *cobra.Command, env *environment) error {
	ctx := cmd.Context()
	if err := env.resolveEndpoints(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	spin := cli.NewSpinner(cmd.ErrOrStderr(), cli.IsInteractive(os.Stderr), "Waiting for approval...")

	auth := deviceflow.New(env.oauth, deviceflow.WithLogger(logging.Logger("DeviceFlow")))
	cred, err := auth.Login(ctx, func(a *deviceflow.Authorization) {
		printDeviceCode(out, a)
		spin.Start()
	})
	if err != nil {
		spin.Fail("Login failed")
		return err
	}
	spin.Stop("")

	if err := env.tokens.Store(ctx, cred); err != nil {
		return err
	}

	st, err := env.tokens.Status()
	if err == nil && st.Email != "" {
		fmt.Fprintf(out, "%s Logged in as %s\n", cli.Success("✓"), st.Email)
	} else {
		fmt.Fprintf(out, "%s Logged in\n", cli.Success("✓"))
	}
	return nil
}

// withLogin runs fn and, when it failed for want of a usable credential in
// an interactive session, signs in and runs fn once more.
func withLogin(cmd *cobra.Command, env *environment, fn func() error) error {
	err := fn()
	if err == nil || !needsLogin(err) || !stdinIsTerminal() {
		return err
	}
	logging.Info("Auth", "No usable credential (%v), starting login", err)
	fmt.Fprintln(cmd.ErrOrStderr(), "You need to sign in first.")
	if err := loginInteractive(cmd, env); err != nil {
		return err
	}
	return fn()
}

func needsLogin(err error) bool {
	var re *tokenstore.RefreshError
	return errors.Is(err, tokenstore.ErrNotFound) || errors.As(err, &re)
}

func printDeviceCode(w io.Writer, a *deviceflow.Authorization) {
	fmt.Fprintln(w, "To sign in, open this URL in a browser:")
	if a.VerificationURIComplete != "" {
		fmt.Fprintf(w, "\n  %s\n\n", a.VerificationURIComplete)
		fmt.Fprintf(w, "and confirm the code %s\n", cli.Warning(a.UserCode))
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", a.VerificationURI)
		fmt.Fprintf(w, "and enter the code %s\n", cli.Warning(a.UserCode))
	}
	fmt.Fprintf(w, "The code expires in %s.\n\n", time.Until(a.ExpiresAt).Round(time.Second))
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	_, loadErr := env.tokens.Load()
	if err := env.tokens.Clear(ctx); err != nil {
		return err
	}
	if errors.Is(loadErr, tokenstore.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", cli.Success("✓"))
	return nil
}
