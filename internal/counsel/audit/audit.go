package audit

import (
	"context"

	"github.com/etutorng/imara-messaging/pkg/log"
)

// Audit actions for the counselling session service.
const (
	ActionCreateSession   = "session.create"
	ActionClaimSession    = "session.claim"
	ActionCompleteSession = "session.complete"
	ActionCancelSession   = "session.cancel"
	ActionAppendMessage   = "message.append"
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

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
