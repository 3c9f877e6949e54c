// Package logging provides the structured logging facade used across cco.
//
// It is a thin layer over Go's standard slog package that tags every record
// with a subsystem and keeps CLI output quiet by default.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelWarn, os.Stderr)
//
//	logging.Info("TokenStore", "Loaded credential from %s", path)
//	logging.Debug("Releases", "GET %s", endpoint)
//	logging.Error("Updater", err, "Rollback failed")
//
// Components that take an injectable *slog.Logger default to
// logging.Logger(subsystem), so both styles end up in the same handler.
//
// # Audit Logging
//
// Credential and binary mutations are recorded with Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "token_stored",
//	    Outcome: "success",
//	    Target:  path,
//	})
//
// Audit records are prefixed with SECURITY_AUDIT and never carry token
// values or presigned URL query strings.
package logging
