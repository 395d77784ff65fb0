package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/services"
)

// TimeoutSweeper periodically checks in-progress step executions against
// their step timeout. What happens to an overdue step is the step's own
// policy: escalate re-notifies the assignee with an overdue flag (at most
// once), reject submits a system reject through the normal decision path,
// cancelling the instance.
type TimeoutSweeper struct {
	persistence persistence.Persistence
	engine      *Engine
	logger      *slog.Logger
	now         func() time.Time
}

// NewTimeoutSweeper creates a timeout sweeper.
func NewTimeoutSweeper(p persistence.Persistence, engine *Engine, logger *slog.Logger) *TimeoutSweeper {
	return &TimeoutSweeper{
		persistence: p,
		engine:      engine,
		logger:      logger.With("module", "timeout_sweeper"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one pass over overdue candidates. Errors on one candidate are
// logged and never abort the sweep.
func (s *TimeoutSweeper) Sweep(ctx context.Context) error {
	executions, err := s.persistence.StepExecutionRepository().ListInProgress(ctx)
	if err != nil {
		return err
	}

	now := s.now()

	for _, execution := range executions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.check(ctx, execution, now)
	}

	return nil
}

func (s *TimeoutSweeper) check(ctx context.Context, execution *models.WorkflowStepExecution, now time.Time) {
	logger := s.logger.With("step_execution_id", execution.ID, "instance_id", execution.InstanceID)

	instance, err := s.persistence.InstanceRepository().GetByID(ctx, execution.InstanceID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load instance for timeout check", "error", err)

		return
	}

	// Same instance-status filter as auto-approval: never act inside a
	// terminal instance.
	if instance.Status != models.InstanceInProgress {
		return
	}

	template, err := s.engine.templates.GetByID(ctx, instance.TemplateID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load template for timeout check", "error", err)

		return
	}

	step, found := template.StepByID(execution.StepID)
	if !found || !execution.Overdue(step, now) {
		return
	}

	switch step.TimeoutPolicyOrDefault() {
	case models.TimeoutReject:
		comment := fmt.Sprintf("step %q timed out after %s", step.Name, step.Timeout())

		_, err := s.engine.CompleteStep(ctx, execution.ID, models.SystemActor, models.DecisionReject, &comment)
		if err != nil {
			if services.IsConcurrencyConflict(err) || services.IsInvalidState(err) {
				logger.DebugContext(ctx, "Timeout rejection lost the race", "error", err)

				return
			}

			logger.ErrorContext(ctx, "Failed to reject overdue step", "error", err)

			return
		}

		logger.InfoContext(ctx, "Rejected overdue step", "step_id", execution.StepID, "timeout", step.Timeout())
	case models.TimeoutEscalate:
		if execution.EscalatedAt != nil {
			return
		}

		err := s.persistence.StepExecutionRepository().UpdateStatus(ctx, execution.ID,
			models.ExecutionInProgress, models.ExecutionInProgress,
			func(ex *models.WorkflowStepExecution) {
				ex.EscalatedAt = &now
			})
		if err != nil {
			if persistence.IsConcurrencyConflict(err) {
				return
			}

			logger.ErrorContext(ctx, "Failed to mark step escalated", "error", err)

			return
		}

		s.engine.notify(ctx, execution.AssigneeID, instance, template, execution, true)
		logger.InfoContext(ctx, "Escalated overdue step",
			"step_id", execution.StepID, "assignee_id", execution.AssigneeID, "timeout", step.Timeout())
	}
}
