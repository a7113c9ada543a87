package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/adalundhe/steward/core/actions"
)

// logExecutor performs actions by recording them. Real delivery transports
// (SMTP, tracker APIs) are deployment-specific and plug in behind the same
// interface.
type logExecutor struct {
	log *slog.Logger
}

var _ actions.Executor = (*logExecutor)(nil)

func (e *logExecutor) ExecuteEmail(_ context.Context, p actions.EmailPayload) (string, error) {
	id := uuid.NewString()
	e.log.Info("email dispatched",
		slog.String("message_id", id),
		slog.String("to", strings.Join(p.To, ", ")),
		slog.String("subject", p.Subject))
	return id, nil
}

func (e *logExecutor) ExecuteJiraStatusChange(_ context.Context, p actions.JiraTransitionPayload) error {
	e.log.Info("issue transitioned",
		slog.String("issue", p.IssueKey),
		slog.String("from", p.FromStatus),
		slog.String("to", p.ToStatus))
	return nil
}
