package workflow

import (
	"context"
	"log/slog"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/services"
	"github.com/approvio/approvio/pkg/subject"
)

// AutoApprover periodically sweeps in-progress step executions whose
// template step carries the auto-approve flag, evaluates their conditions
// against current subject attributes, and approves through the same
// CompleteStep path a human would use. There is no separate transition
// logic, so the conditional-update discipline makes double-triggering
// impossible.
type AutoApprover struct {
	persistence persistence.Persistence
	engine      *Engine
	subjects    subject.AttributeReader
	evaluator   models.ConditionEvaluator
	logger      *slog.Logger
}

// NewAutoApprover creates an auto-approval sweeper.
func NewAutoApprover(p persistence.Persistence, engine *Engine, subjects subject.AttributeReader, logger *slog.Logger) *AutoApprover {
	return &AutoApprover{
		persistence: p,
		engine:      engine,
		subjects:    subjects,
		logger:      logger.With("module", "auto_approver"),
	}
}

// Sweep runs one pass over the auto-approval candidates. Evaluation or
// transition errors on one candidate are logged and never abort the sweep.
func (a *AutoApprover) Sweep(ctx context.Context) error {
	executions, err := a.persistence.StepExecutionRepository().ListInProgress(ctx)
	if err != nil {
		return err
	}

	for _, execution := range executions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a.evaluate(ctx, execution)
	}

	return nil
}

func (a *AutoApprover) evaluate(ctx context.Context, execution *models.WorkflowStepExecution) {
	logger := a.logger.With("step_execution_id", execution.ID, "instance_id", execution.InstanceID)

	instance, err := a.persistence.InstanceRepository().GetByID(ctx, execution.InstanceID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load instance for auto-approval", "error", err)

		return
	}

	// Filter by instance status, not just execution status: a just-cancelled
	// instance must never see another approval.
	if instance.Status != models.InstanceInProgress {
		return
	}

	template, err := a.engine.templates.GetByID(ctx, instance.TemplateID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load template for auto-approval", "error", err)

		return
	}

	step, found := template.StepByID(execution.StepID)
	if !found || !step.AutoApprove {
		return
	}

	attributes, err := a.subjects.Attributes(ctx, instance.SubjectID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read subject attributes", "subject_id", instance.SubjectID, "error", err)

		return
	}

	satisfied, err := a.evaluator.Evaluate(step.Conditions, attributes)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to evaluate auto-approval conditions", "error", err)

		return
	}

	if !satisfied {
		return
	}

	_, err = a.engine.CompleteStep(ctx, execution.ID, models.SystemActor, models.DecisionApprove, nil)
	if err != nil {
		// A conflict or stale state means a human decided first; the sweep
		// simply moves on.
		if services.IsConcurrencyConflict(err) || services.IsInvalidState(err) {
			logger.DebugContext(ctx, "Auto-approval lost the race", "error", err)

			return
		}

		logger.ErrorContext(ctx, "Failed to auto-approve step", "error", err)

		return
	}

	logger.InfoContext(ctx, "Auto-approved step", "step_id", execution.StepID)
}
