package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"cco/internal/config"
	"cco/internal/download"
	"cco/internal/presign"
	"cco/internal/releases"
	"cco/internal/tokenstore"
	"cco/internal/updater"
	"cco/pkg/oauth"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitAuthRequired  = 2
	ExitAuthFailed    = 3
	ExitVerification  = 4
	ExitNetwork       = 5
	ExitInstallFailed = 6
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ie *updater.InstallError
	if errors.As(err, &ie) {
		return ExitInstallFailed
	}

	switch {
	case errors.Is(err, presign.ErrInvalidURL),
		errors.Is(err, presign.ErrUntrustedHost),
		errors.Is(err, download.ErrChecksumMismatch),
		errors.Is(err, download.ErrSizeExceeded),
		errors.Is(err, tokenstore.ErrPermissionDenied):
		return ExitVerification
	}

	if isNetwork(err) {
		return ExitNetwork
	}

	var re *tokenstore.RefreshError
	switch {
	case errors.As(err, &re),
		errors.Is(err, tokenstore.ErrNotFound),
		errors.Is(err, tokenstore.ErrCorrupt),
		errors.Is(err, releases.ErrUnauthorized):
		return ExitAuthRequired
	case errors.Is(err, oauth.ErrAccessDenied),
		errors.Is(err, oauth.ErrAuthExpired),
		errors.Is(err, oauth.ErrProtocol),
		errors.Is(err, releases.ErrForbidden):
		return ExitAuthFailed
	}

	return ExitGeneral
}

func isNetwork(err error) bool {
	if errors.Is(err, download.ErrNetworkInterrupted) ||
		errors.Is(err, download.ErrHTTPStatus) ||
		errors.Is(err, oauth.ErrNetworkFailure) ||
		errors.Is(err, releases.ErrRateLimited) ||
		errors.Is(err, releases.ErrServerError) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ce *ConnectionError
	var ue *url.Error
	var ne net.Error
	return errors.As(err, &ce) || errors.As(err, &ue) || errors.As(err, &ne)
}

// Hint returns remediation guidance for err, or "" when there is none.
func Hint(err error) string {
	if err == nil {
		return ""
	}

	var ie *updater.InstallError
	if errors.As(err, &ie) {
		switch {
		case ie.Kind == updater.Locked:
			return "Another cco update is running. Wait for it to finish and try again."
		case ie.Restored:
			return "The previous version was restored and is still installed.\n\nTo retry, run:\n  cco update install"
		case ie.BackupPath != "":
			return fmt.Sprintf("The update could not be completed and the previous version could not be restored automatically.\n\nTo restore it by hand, move\n  %s\nback over the cco binary.", ie.BackupPath)
		default:
			return "Nothing was changed. Check that you can write to the directory holding the cco binary."
		}
	}

	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		return ce.DetailedError()
	}

	switch {
	case errors.Is(err, presign.ErrUntrustedHost), errors.Is(err, presign.ErrInvalidURL):
		return "The release server returned a download link that failed security checks. Nothing was downloaded.\nIf this persists, report it to the cco maintainers."
	case errors.Is(err, download.ErrChecksumMismatch):
		return "The downloaded file did not match the published checksum and was discarded. The installed binary was not changed."
	case errors.Is(err, download.ErrSizeExceeded):
		return "The download exceeded the allowed size and was discarded.\nThe limit is releases.maxDownloadBytes in the cco configuration."
	case errors.Is(err, tokenstore.ErrPermissionDenied):
		return "The credential file is accessible to other users.\n\nTo fix, run:\n  cco logout\n  cco login"
	}

	if conn := classify(err); conn != nil {
		switch conn.Type {
		case ConnectionErrorTLS:
			return "The server certificate could not be verified. Check your system clock and any proxy intercepting TLS."
		case ConnectionErrorDNS:
			return "The server name could not be resolved. Check your network connection."
		default:
			return "Check your network connection and try again."
		}
	}

	var re *tokenstore.RefreshError
	switch {
	case errors.As(err, &re), errors.Is(err, releases.ErrUnauthorized), errors.Is(err, tokenstore.ErrCorrupt):
		return "Your session has expired.\n\nTo re-authenticate, run:\n  cco login"
	case errors.Is(err, tokenstore.ErrNotFound):
		return "You are not logged in.\n\nTo authenticate, run:\n  cco login"
	case errors.Is(err, oauth.ErrAccessDenied):
		return "The login request was denied in the browser.\n\nTo try again, run:\n  cco login"
	case errors.Is(err, oauth.ErrAuthExpired):
		return "The login code expired before it was approved.\n\nTo get a new code, run:\n  cco login"
	case errors.Is(err, releases.ErrForbidden):
		return "Your account is not allowed to download cco releases. Contact your administrator."
	case errors.Is(err, releases.ErrRateLimited):
		return "The release server is rate limiting requests. Try again later."
	}
	return ""
}

// classify returns the connection error behind err, if it is one.
func classify(err error) *ConnectionError {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce
	}
	if !isNetwork(err) {
		return nil
	}
	endpoint := ""
	var ue *url.Error
	if errors.As(err, &ue) {
		endpoint = ue.URL
	}
	return ClassifyConnectionError(err, endpoint)
}
