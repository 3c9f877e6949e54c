package logging

import (
	"context"
	"log/slog"
)

// AuditEvent describes a security-relevant operation on credentials or on
// the installed executable. Never put secret material in any field.
type AuditEvent struct {
	Action  string // e.g. "token_stored", "binary_replaced"
	Outcome string // "success" or "failure"
	Target  string // file path or endpoint the action touched
	TxID    string // update transaction ID, if any
	Detail  string
	Err     error
}

// Audit logs a security audit record at INFO level (WARN on failure) with a
// SECURITY_AUDIT prefix so it can be filtered by log aggregation.
func Audit(ev AuditEvent) {
	level := slog.LevelInfo
	if ev.Outcome == "failure" {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("subsystem", "Audit"),
		slog.String("event", ev.Action),
		slog.String("outcome", ev.Outcome),
	}
	if ev.Target != "" {
		attrs = append(attrs, slog.String("target", ev.Target))
	}
	if ev.TxID != "" {
		attrs = append(attrs, slog.String("tx", ev.TxID))
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}

	current().LogAttrs(context.Background(), level, "SECURITY_AUDIT: "+ev.Action, attrs...)
}
