package audit

import (
	"context"

	"github.com/quillchat/quill/internal/log"
)

// Audit actions.
const (
	ActionRegister    = "user.register"
	ActionLogin       = "user.login"
	ActionLoginFailed = "user.login_failed"
	ActionLogout      = "user.logout"
	ActionConnect     = "ws.connect"
	ActionDisconnect  = "ws.disconnect"
	ActionSendMessage = "ws.send_message"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
