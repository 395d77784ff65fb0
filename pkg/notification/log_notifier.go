package notification

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the log. Development fallback when no
// event bus is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notification")}
}

// Notify logs the dispatch.
func (n *LogNotifier) Notify(ctx context.Context, assigneeID string, stepCtx StepContext) error {
	n.logger.InfoContext(ctx, "Step assigned",
		"assignee_id", assigneeID,
		"instance_id", stepCtx.InstanceID,
		"step_execution_id", stepCtx.StepExecutionID,
		"step_name", stepCtx.StepName,
		"overdue", stepCtx.Overdue)

	return nil
}
