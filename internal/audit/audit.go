package audit

import (
	"context"

	"github.com/caseportal/messaging/pkg/log"
)

// Audit actions for the messaging gateway.
const (
	ActionAuth        = "messaging.auth"
	ActionAuthFailed  = "messaging.auth_failed"
	ActionJoin        = "messaging.join"
	ActionJoinDenied  = "messaging.join_denied"
	ActionLeave       = "messaging.leave"
	ActionSend        = "messaging.send"
	ActionSendDenied  = "messaging.send_denied"
	ActionDisconnect  = "messaging.disconnect"
	ActionMarkRead    = "messaging.mark_read"
	ActionHistoryRead = "messaging.history_read"
	ActionTranscript  = "messaging.transcript_export"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
	FieldResult = "result"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, caseID, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
	if caseID != "" {
		evt = evt.Str(log.FieldCaseID, caseID)
	}
	evt.Msg(msg)
}

// LogWithDetail emits an audit entry with a detail field. Details are for
// operators only and never reach clients.
func LogWithDetail(ctx context.Context, action, userID, caseID, detail, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail)
	if caseID != "" {
		evt = evt.Str(log.FieldCaseID, caseID)
	}
	evt.Msg(msg)
}
