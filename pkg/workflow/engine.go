// Package workflow provides the orchestration engine that drives multi-step
// approval processes: instance lifecycle, step activation, decision
// processing, and cancellation propagation.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/notification"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/services"
	"github.com/google/uuid"
)

// MaxRevisions bounds how often an assignee may request changes on one step
// before they must approve or reject.
const MaxRevisions = 3

// Engine coordinates template lookup, instance lifecycle, step activation,
// decision processing, and cancellation.
type Engine struct {
	persistence persistence.Persistence
	templates   *services.Template
	notifier    notification.Notifier
	publisher   *EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngine creates a workflow engine. The publisher may be nil when no
// event bus is configured.
func NewEngine(
	p persistence.Persistence,
	templates *services.Template,
	notifier notification.Notifier,
	publisher *EventPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: p,
		templates:   templates,
		notifier:    notifier,
		publisher:   publisher,
		logger:      logger.With("module", "workflow_engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start creates an instance for the template, creates one pending step
// execution per template step, and activates the first eligible step.
func (e *Engine) Start(ctx context.Context, templateID, subjectID, initiatedBy string, metadata map[string]any) (*models.WorkflowInstance, error) {
	logger := e.logger.With("template_id", templateID, "subject_id", subjectID)

	template, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}

	if !template.Active {
		return nil, &services.ServiceError{Op: "Start", Message: templateID, Err: services.ErrTemplateInactive}
	}

	instanceID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance ID: %w", err)
	}

	instance := &models.WorkflowInstance{
		ID:          instanceID.String(),
		TemplateID:  template.ID,
		SubjectID:   subjectID,
		Status:      models.InstancePending,
		InitiatedBy: initiatedBy,
		StartedAt:   e.now(),
		Metadata:    metadata,
	}

	if err := e.persistence.InstanceRepository().Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	executions := make([]*models.WorkflowStepExecution, 0, len(template.Steps))

	for _, step := range template.Steps {
		executionID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate execution ID: %w", err)
		}

		executions = append(executions, &models.WorkflowStepExecution{
			ID:         executionID.String(),
			InstanceID: instance.ID,
			StepID:     step.ID,
			StepOrder:  step.Order,
			Status:     models.ExecutionPending,
			AssigneeID: step.AssigneeID,
		})
	}

	if err := e.persistence.StepExecutionRepository().CreateBatch(ctx, executions); err != nil {
		return nil, fmt.Errorf("failed to create step executions: %w", err)
	}

	e.publisher.InstanceStarted(ctx, instance)

	if err := e.activateNext(ctx, instance, template); err != nil {
		return nil, fmt.Errorf("failed to activate first step: %w", err)
	}

	logger.InfoContext(ctx, "Started workflow instance", "instance_id", instance.ID, "steps", len(executions))

	return e.persistence.InstanceRepository().GetByID(ctx, instance.ID)
}

// StartForTrigger selects active templates matching the trigger event and
// starts one instance per template. Per-template failures are logged and do
// not abort the remaining starts.
func (e *Engine) StartForTrigger(ctx context.Context, trigger models.TriggerKind, subjectID, subjectCategory, subjectType, initiatedBy string) ([]*models.WorkflowInstance, error) {
	templates, err := e.templates.FindForTrigger(ctx, trigger, subjectCategory, subjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to find templates for trigger %s: %w", trigger, err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(templates))

	for _, template := range templates {
		instance, err := e.Start(ctx, template.ID, subjectID, initiatedBy, nil)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to start workflow for trigger",
				"template_id", template.ID, "subject_id", subjectID, "trigger", trigger, "error", err)

			continue
		}

		instances = append(instances, instance)
	}

	return instances, nil
}

// CompleteStep validates and applies an actor's decision against an
// in-progress step execution. The state check and the write are one
// conditional update, so under a race exactly one decision is applied.
func (e *Engine) CompleteStep(ctx context.Context, stepExecutionID, actor string, decision models.Decision, comments *string) (*models.WorkflowStepExecution, error) {
	if !decision.Valid() {
		return nil, services.NewValidationError("CompleteStep", string(decision), services.ErrInvalidDecision)
	}

	execution, err := e.persistence.StepExecutionRepository().GetByID(ctx, stepExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step execution %s: %w", stepExecutionID, err)
	}

	instance, err := e.persistence.InstanceRepository().GetByID(ctx, execution.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance %s: %w", execution.InstanceID, err)
	}

	if instance.Status.IsTerminal() {
		return nil, &services.ServiceError{Op: "CompleteStep", Message: instance.ID, Err: services.ErrInstanceTerminal}
	}

	if execution.Status != models.ExecutionInProgress {
		return nil, &services.ServiceError{Op: "CompleteStep", Message: stepExecutionID, Err: services.ErrStepNotInProgress}
	}

	template, err := e.templates.GetByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", instance.TemplateID, err)
	}

	switch decision {
	case models.DecisionApprove:
		err = e.applyCompletion(ctx, execution, actor, decision, comments)
		if err != nil {
			return nil, err
		}

		e.publisher.StepCompleted(ctx, instance, execution, decision, actor)

		if err := e.activateNext(ctx, instance, template); err != nil {
			return nil, fmt.Errorf("failed to advance instance %s: %w", instance.ID, err)
		}
	case models.DecisionReject:
		err = e.applyCompletion(ctx, execution, actor, decision, comments)
		if err != nil {
			return nil, err
		}

		e.publisher.StepCompleted(ctx, instance, execution, decision, actor)

		reason := fmt.Sprintf("step %s rejected by %s", execution.StepID, actor)
		if err := e.cancelInstance(ctx, instance, reason); err != nil {
			return nil, err
		}
	case models.DecisionRequestChanges:
		if execution.RevisionCount >= MaxRevisions {
			return nil, &services.ServiceError{Op: "CompleteStep", Message: stepExecutionID, Err: services.ErrRevisionsExceeded}
		}

		// The step stays in progress: the decision is recorded, the
		// initiator is asked to revise, and the assignee re-decides later.
		err = e.persistence.StepExecutionRepository().UpdateStatus(ctx, execution.ID,
			models.ExecutionInProgress, models.ExecutionInProgress,
			func(ex *models.WorkflowStepExecution) {
				d := models.DecisionRequestChanges
				ex.Decision = &d
				ex.Comments = comments
				ex.RevisionCount++
			})
		if err != nil {
			return nil, fmt.Errorf("failed to record change request on %s: %w", execution.ID, err)
		}

		e.publisher.StepChangesRequested(ctx, instance, execution, actor)
		e.notify(ctx, instance.InitiatedBy, instance, template, execution, false)
	}

	return e.persistence.StepExecutionRepository().GetByID(ctx, stepExecutionID)
}

// applyCompletion is the single conditional write that marks an in-progress
// execution completed with the actor's decision.
func (e *Engine) applyCompletion(ctx context.Context, execution *models.WorkflowStepExecution, actor string, decision models.Decision, comments *string) error {
	now := e.now()

	err := e.persistence.StepExecutionRepository().UpdateStatus(ctx, execution.ID,
		models.ExecutionInProgress, models.ExecutionCompleted,
		func(ex *models.WorkflowStepExecution) {
			ex.CompletedAt = &now
			ex.CompletedBy = &actor
			ex.Decision = &decision
			ex.Comments = comments
		})
	if err != nil {
		return fmt.Errorf("failed to complete step execution %s: %w", execution.ID, err)
	}

	return nil
}

// Cancel terminates an instance: every non-terminal step execution is
// skipped and no further activation or auto-approval touches it.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason string) error {
	instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to load instance %s: %w", instanceID, err)
	}

	if instance.Status.IsTerminal() {
		return &services.ServiceError{Op: "Cancel", Message: instanceID, Err: services.ErrInstanceTerminal}
	}

	return e.cancelInstance(ctx, instance, reason)
}

func (e *Engine) cancelInstance(ctx context.Context, instance *models.WorkflowInstance, reason string) error {
	now := e.now()

	err := e.persistence.InstanceRepository().UpdateStatus(ctx, instance.ID,
		instance.Status, models.InstanceCancelled,
		func(in *models.WorkflowInstance) {
			in.CancelReason = reason
			in.CompletedAt = &now
			in.CurrentStepExecutionID = nil
		})
	if err != nil {
		return fmt.Errorf("failed to cancel instance %s: %w", instance.ID, err)
	}

	skipped, err := e.persistence.StepExecutionRepository().SkipRemaining(ctx, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to skip remaining steps of %s: %w", instance.ID, err)
	}

	e.publisher.InstanceCancelled(ctx, instance, reason)
	e.logger.InfoContext(ctx, "Cancelled workflow instance",
		"instance_id", instance.ID, "reason", reason, "skipped_steps", len(skipped))

	return nil
}

// activateNext is the step activation algorithm. It is idempotent: both the
// decision path and the background sweeps may invoke it redundantly, and a
// lost conditional write only means another worker already advanced the
// instance.
func (e *Engine) activateNext(ctx context.Context, instance *models.WorkflowInstance, template *models.WorkflowTemplate) error {
	executions, err := e.persistence.StepExecutionRepository().ListByInstance(ctx, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to list step executions of %s: %w", instance.ID, err)
	}

	var next *models.WorkflowStepExecution

	for _, execution := range executions {
		if !execution.Status.IsTerminal() {
			next = execution

			break
		}
	}

	if next == nil {
		return e.completeInstance(ctx, instance)
	}

	if next.Status == models.ExecutionInProgress {
		// Already active; safe re-invocation after a partial failure.
		return nil
	}

	now := e.now()

	err = e.persistence.StepExecutionRepository().UpdateStatus(ctx, next.ID,
		models.ExecutionPending, models.ExecutionInProgress,
		func(ex *models.WorkflowStepExecution) {
			ex.AssignedAt = &now
		})
	if err != nil {
		if persistence.IsConcurrencyConflict(err) {
			e.logger.DebugContext(ctx, "Step already activated by another worker",
				"instance_id", instance.ID, "step_execution_id", next.ID)

			return nil
		}

		return fmt.Errorf("failed to activate step execution %s: %w", next.ID, err)
	}

	if err := e.pointInstanceAt(ctx, instance, next.ID); err != nil {
		return err
	}

	step, _ := template.StepByID(next.StepID)
	e.publisher.StepActivated(ctx, instance, next)
	e.notify(ctx, next.AssigneeID, instance, template, next, false)

	e.logger.InfoContext(ctx, "Activated step",
		"instance_id", instance.ID, "step_execution_id", next.ID,
		"step_name", step.Name, "assignee_id", next.AssigneeID)

	return nil
}

// pointInstanceAt moves the instance's current-step pointer to the given
// execution, promoting a pending instance to in progress on first activation.
func (e *Engine) pointInstanceAt(ctx context.Context, instance *models.WorkflowInstance, executionID string) error {
	if instance.Status == models.InstancePending {
		err := e.persistence.InstanceRepository().UpdateStatus(ctx, instance.ID,
			models.InstancePending, models.InstanceInProgress,
			func(in *models.WorkflowInstance) {
				in.CurrentStepExecutionID = &executionID
			})
		if err != nil {
			if persistence.IsConcurrencyConflict(err) {
				return e.persistence.InstanceRepository().SetCurrentStep(ctx, instance.ID, &executionID)
			}

			return fmt.Errorf("failed to move instance %s in progress: %w", instance.ID, err)
		}

		instance.Status = models.InstanceInProgress

		return nil
	}

	if err := e.persistence.InstanceRepository().SetCurrentStep(ctx, instance.ID, &executionID); err != nil {
		return fmt.Errorf("failed to update current step of %s: %w", instance.ID, err)
	}

	return nil
}

// completeInstance marks an instance completed once no activatable step
// remains. A lost conditional write means another worker finished it first.
func (e *Engine) completeInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	now := e.now()

	err := e.persistence.InstanceRepository().UpdateStatus(ctx, instance.ID,
		instance.Status, models.InstanceCompleted,
		func(in *models.WorkflowInstance) {
			in.CompletedAt = &now
			in.CurrentStepExecutionID = nil
		})
	if err != nil {
		if persistence.IsConcurrencyConflict(err) {
			e.logger.DebugContext(ctx, "Instance already advanced by another worker", "instance_id", instance.ID)

			return nil
		}

		return fmt.Errorf("failed to complete instance %s: %w", instance.ID, err)
	}

	e.publisher.InstanceCompleted(ctx, instance, now)
	e.logger.InfoContext(ctx, "Completed workflow instance", "instance_id", instance.ID)

	return nil
}

// notify dispatches a notification. Dispatch is fire-and-forget: failures
// are logged as warnings and never fail the engine operation.
func (e *Engine) notify(ctx context.Context, assigneeID string, instance *models.WorkflowInstance, template *models.WorkflowTemplate, execution *models.WorkflowStepExecution, overdue bool) {
	if e.notifier == nil || assigneeID == "" {
		return
	}

	step, _ := template.StepByID(execution.StepID)

	err := e.notifier.Notify(ctx, assigneeID, notification.StepContext{
		InstanceID:      instance.ID,
		SubjectID:       instance.SubjectID,
		StepExecutionID: execution.ID,
		StepID:          execution.StepID,
		StepName:        step.Name,
		TemplateName:    template.Name,
		Overdue:         overdue,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to dispatch notification",
			"assignee_id", assigneeID, "step_execution_id", execution.ID, "error", err)
	}
}
