package file

import (
	"context"
	"os"
	"sort"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

const executionsDir = "executions"

// StepExecutionRepository handles step-execution-related file operations.
type StepExecutionRepository struct {
	store *Persistence
}

// CreateBatch persists all executions for a new instance. Under the store
// lock the batch is observed all-or-nothing by other operations.
func (r *StepExecutionRepository) CreateBatch(_ context.Context, executions []*models.WorkflowStepExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, execution := range executions {
		if err := r.store.write(executionsDir, execution.ID, execution); err != nil {
			return persistence.NewStepExecutionError("CreateBatch", execution.ID, err)
		}
	}

	return nil
}

// GetByID returns the step execution with the given id.
func (r *StepExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(id)
}

func (r *StepExecutionRepository) getLocked(id string) (*models.WorkflowStepExecution, error) {
	var execution models.WorkflowStepExecution

	if err := r.store.read(executionsDir, id, &execution); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStepExecutionError("GetByID", id, persistence.ErrStepExecutionNotFound)
		}

		return nil, persistence.NewStepExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

// ListByInstance returns the instance's executions ordered by step order.
func (r *StepExecutionRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.listByInstanceLocked(instanceID)
}

func (r *StepExecutionRepository) listByInstanceLocked(instanceID string) ([]*models.WorkflowStepExecution, error) {
	executions, err := r.filterLocked(func(e *models.WorkflowStepExecution) bool {
		return e.InstanceID == instanceID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StepOrder < executions[j].StepOrder
	})

	return executions, nil
}

// ListInProgressForAssignee returns every in-progress execution assigned to the actor.
func (r *StepExecutionRepository) ListInProgressForAssignee(_ context.Context, assigneeID string) ([]*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.filterLocked(func(e *models.WorkflowStepExecution) bool {
		return e.Status == models.ExecutionInProgress && e.AssigneeID == assigneeID
	})
}

// ListInProgress returns every in-progress execution across instances.
func (r *StepExecutionRepository) ListInProgress(_ context.Context) ([]*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.filterLocked(func(e *models.WorkflowStepExecution) bool {
		return e.Status == models.ExecutionInProgress
	})
}

func (r *StepExecutionRepository) filterLocked(keep func(*models.WorkflowStepExecution) bool) ([]*models.WorkflowStepExecution, error) {
	ids, err := r.store.ids(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowStepExecution, 0)

	for _, id := range ids {
		execution, err := r.getLocked(id)
		if err != nil {
			return nil, err
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

// UpdateStatus conditionally moves the execution from one status to another.
// This is the single primitive both interactive decisions and the background
// sweeps go through; a stale precondition surfaces as ErrConcurrencyConflict.
func (r *StepExecutionRepository) UpdateStatus(_ context.Context, id string, from, to models.ExecutionStatus, mutate persistence.ExecutionMutation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	execution, err := r.getLocked(id)
	if err != nil {
		return err
	}

	if execution.Status != from {
		return persistence.NewStepExecutionError("UpdateStatus", id, persistence.ErrConcurrencyConflict)
	}

	if !from.CanTransitionTo(to) {
		return persistence.NewStepExecutionError("UpdateStatus", id, persistence.ErrInvalidTransition)
	}

	execution.Status = to

	if mutate != nil {
		mutate(execution)
	}

	if err := r.store.write(executionsDir, id, execution); err != nil {
		return persistence.NewStepExecutionError("UpdateStatus", id, err)
	}

	return nil
}

// SkipRemaining marks every non-terminal execution of the instance as
// skipped. Under the store lock the batch is atomic.
func (r *StepExecutionRepository) SkipRemaining(_ context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	executions, err := r.listByInstanceLocked(instanceID)
	if err != nil {
		return nil, err
	}

	skipped := make([]*models.WorkflowStepExecution, 0)

	for _, execution := range executions {
		if execution.Status.IsTerminal() {
			continue
		}

		execution.Status = models.ExecutionSkipped

		if err := r.store.write(executionsDir, execution.ID, execution); err != nil {
			return nil, persistence.NewStepExecutionError("SkipRemaining", execution.ID, err)
		}

		skipped = append(skipped, execution)
	}

	return skipped, nil
}
