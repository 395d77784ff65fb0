// Package persistence provides the data storage abstraction layer for
// workflow templates, instances, and step executions.
package persistence

import (
	"context"

	"github.com/approvio/approvio/pkg/models"
)

// Persistence bundles the repositories the engine needs plus lifecycle
// management for the underlying store.
type Persistence interface {
	TemplateRepository() TemplateRepository
	InstanceRepository() InstanceRepository
	StepExecutionRepository() StepExecutionRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// TemplateRepository stores reusable workflow definitions.
type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context) ([]*models.WorkflowTemplate, error)

	// ListForTrigger returns active templates matching the trigger and
	// subject filters. Empty template filters match any value.
	ListForTrigger(ctx context.Context, trigger models.TriggerKind, subjectCategory, subjectType string) ([]*models.WorkflowTemplate, error)

	// Delete removes a template. It fails with ErrTemplateInUse while any
	// instance still references it.
	Delete(ctx context.Context, id string) error
}

// InstanceMutation adjusts instance fields inside a conditional status
// update; it runs only when the status precondition held.
type InstanceMutation func(*models.WorkflowInstance)

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.WorkflowInstance, error)

	// CountByTemplate reports how many instances reference the template,
	// used to guard template deletion.
	CountByTemplate(ctx context.Context, templateID string) (int, error)

	// UpdateStatus performs a conditional write: the instance moves from
	// `from` to `to` only if its current status is still `from`. A stale
	// precondition surfaces as ErrConcurrencyConflict so that under a race
	// exactly one writer succeeds.
	UpdateStatus(ctx context.Context, id string, from, to models.InstanceStatus, mutate InstanceMutation) error

	// SetCurrentStep updates the instance's active step execution pointer.
	// Only the activation algorithm writes it.
	SetCurrentStep(ctx context.Context, id string, stepExecutionID *string) error
}

// ExecutionMutation adjusts execution fields inside a conditional status
// update; it runs only when the status precondition held.
type ExecutionMutation func(*models.WorkflowStepExecution)

// StepExecutionRepository stores per-instance step runtime records.
type StepExecutionRepository interface {
	// CreateBatch persists all executions for a new instance transactionally.
	CreateBatch(ctx context.Context, executions []*models.WorkflowStepExecution) error

	GetByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error)

	// ListByInstance returns the instance's executions ordered by step order.
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error)

	// ListInProgressForAssignee returns every in-progress execution assigned
	// to the given actor.
	ListInProgressForAssignee(ctx context.Context, assigneeID string) ([]*models.WorkflowStepExecution, error)

	// ListInProgress returns every in-progress execution across instances;
	// the background sweeps filter their candidates from it.
	ListInProgress(ctx context.Context) ([]*models.WorkflowStepExecution, error)

	// UpdateStatus is the single conditional-update primitive every status
	// transition goes through, for both interactive decisions and the
	// background sweeps. A stale precondition surfaces as
	// ErrConcurrencyConflict.
	UpdateStatus(ctx context.Context, id string, from, to models.ExecutionStatus, mutate ExecutionMutation) error

	// SkipRemaining marks every non-terminal execution of the instance as
	// skipped, atomically as a batch, and returns the skipped executions.
	SkipRemaining(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error)
}
