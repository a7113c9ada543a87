// Package events defines the audit events emitted by the hold queue and the
// ensemble orchestrator, and a small in-process bus for routing them to
// subscribers such as the structured-log sink.
package events

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type classifies an audit event.
type Type string

const (
	TypeActionQueued          Type = "action_queued"
	TypeActionApproved        Type = "action_approved"
	TypeActionCancelled       Type = "action_cancelled"
	TypeActionExecuted        Type = "action_executed"
	TypeActionFailed          Type = "action_failed"
	TypeChallengeRaised       Type = "challenge_raised"
	TypeDeliberationCompleted Type = "deliberation_completed"
)

// AuditEvent is one immutable audit record.
type AuditEvent struct {
	ID         string
	Type       Type
	Project    string
	ActionID   string
	ActionType string
	Detail     string
	Timestamp  time.Time
}

// New builds an audit event with a fresh id and the current time.
func New(t Type, project string) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Project:   project,
		Timestamp: time.Now().UTC(),
	}
}

// WithAction attaches the acted-on held action.
func (e AuditEvent) WithAction(actionID, actionType string) AuditEvent {
	e.ActionID = actionID
	e.ActionType = actionType
	return e
}

// WithDetail attaches free-text detail (cancel reason, error message).
func (e AuditEvent) WithDetail(detail string) AuditEvent {
	e.Detail = detail
	return e
}

// LogValue renders the event for slog sinks.
func (e AuditEvent) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("project", e.Project),
	}
	if e.ActionID != "" {
		attrs = append(attrs, slog.String("action_id", e.ActionID))
	}
	if e.ActionType != "" {
		attrs = append(attrs, slog.String("action_type", e.ActionType))
	}
	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}
	return slog.GroupValue(attrs...)
}
