package session

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies a security-relevant session transition.
type AuditEvent string

const (
	AuditLoginSuccess    AuditEvent = "login_success"
	AuditLoginFailure    AuditEvent = "login_failure"
	AuditLoginSuperseded AuditEvent = "login_superseded"
	AuditLogout          AuditEvent = "logout"
	AuditSessionExpired  AuditEvent = "session_expired"
	AuditMalformedToken  AuditEvent = "malformed_token"
	AuditProfileRefresh  AuditEvent = "profile_refreshed"
)

// auditLogger wraps slog.Logger for structured session audit logging.
type auditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// newAuditLogger expects logger to already carry the realm attribute.
func newAuditLogger(logger *slog.Logger, now func() time.Time) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		now:    now,
	}
}

func (al *auditLogger) log(ctx context.Context, level slog.Level, event AuditEvent, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(ctx, level, "audit", baseAttrs...)
}

// logEvent records a successful transition for username.
func (al *auditLogger) logEvent(ctx context.Context, event AuditEvent, username string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("username", username)}
	al.log(ctx, slog.LevelInfo, event, append(attrs, extra...)...)
}

// logFailure records a failed or discarded transition.
func (al *auditLogger) logFailure(ctx context.Context, event AuditEvent, err error, extra ...slog.Attr) {
	level := slog.LevelWarn
	if event == AuditMalformedToken {
		level = slog.LevelError
	}
	attrs := []slog.Attr{slog.String("reason", err.Error())}
	al.log(ctx, level, event, append(attrs, extra...)...)
}
