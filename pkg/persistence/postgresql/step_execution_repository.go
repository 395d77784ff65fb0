package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

// StepExecutionRepository handles step-execution-related database operations.
type StepExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepExecutionRepository creates a new step execution repository.
func NewStepExecutionRepository(db *sql.DB, logger *slog.Logger) *StepExecutionRepository {
	return &StepExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , instance_id
  , step_id
  , step_order
  , status
  , assignee_id
  , assigned_at
  , completed_at
  , completed_by
  , decision
  , comments
  , revision_count
  , escalated_at
`

// CreateBatch persists all executions for a new instance in one transaction.
func (r *StepExecutionRepository) CreateBatch(ctx context.Context, executions []*models.WorkflowStepExecution) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO workflow_step_executions (id, instance_id, step_id, step_order, status, assignee_id, assigned_at, completed_at, completed_by, decision, comments, revision_count, escalated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	for _, execution := range executions {
		var decision *string
		if execution.Decision != nil {
			d := string(*execution.Decision)
			decision = &d
		}

		_, err = tx.ExecContext(ctx, query,
			execution.ID, execution.InstanceID, execution.StepID, execution.StepOrder,
			string(execution.Status), execution.AssigneeID, execution.AssignedAt,
			execution.CompletedAt, execution.CompletedBy, decision,
			execution.Comments, execution.RevisionCount, execution.EscalatedAt)
		if err != nil {
			return persistence.NewStepExecutionError("CreateBatch", execution.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

// GetByID returns the step execution with the given id.
func (r *StepExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_step_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStepExecutionError("GetByID", id, persistence.ErrStepExecutionNotFound)
		}

		return nil, persistence.NewStepExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// ListByInstance returns the instance's executions ordered by step order.
func (r *StepExecutionRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_step_executions WHERE instance_id = $1 ORDER BY step_order ASC`

	return r.queryExecutions(ctx, query, instanceID)
}

// ListInProgressForAssignee returns every in-progress execution assigned to the actor.
func (r *StepExecutionRepository) ListInProgressForAssignee(ctx context.Context, assigneeID string) ([]*models.WorkflowStepExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_step_executions
		WHERE assignee_id = $1 AND status = 'in_progress'
		ORDER BY assigned_at ASC
	`

	return r.queryExecutions(ctx, query, assigneeID)
}

// ListInProgress returns every in-progress execution across instances.
func (r *StepExecutionRepository) ListInProgress(ctx context.Context) ([]*models.WorkflowStepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_step_executions WHERE status = 'in_progress' ORDER BY assigned_at ASC`

	return r.queryExecutions(ctx, query)
}

// UpdateStatus conditionally moves the execution from one status to another.
// The row is locked for the duration of the transaction so the status check
// and the mutated write are a single atomic step; a stale precondition
// surfaces as ErrConcurrencyConflict.
func (r *StepExecutionRepository) UpdateStatus(ctx context.Context, id string, from, to models.ExecutionStatus, mutate persistence.ExecutionMutation) error {
	if !from.CanTransitionTo(to) {
		return persistence.NewStepExecutionError("UpdateStatus", id, persistence.ErrInvalidTransition)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStepExecutionError("UpdateStatus", id, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + executionColumns + ` FROM workflow_step_executions WHERE id = $1 FOR UPDATE`

	execution, err := scanExecution(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewStepExecutionError("UpdateStatus", id, persistence.ErrStepExecutionNotFound)
		}

		return persistence.NewStepExecutionError("UpdateStatus", id, err)
	}

	if execution.Status != from {
		return persistence.NewStepExecutionError("UpdateStatus", id, persistence.ErrConcurrencyConflict)
	}

	execution.Status = to

	if mutate != nil {
		mutate(execution)
	}

	var decision *string
	if execution.Decision != nil {
		d := string(*execution.Decision)
		decision = &d
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_step_executions
		SET status = $2
		  , assigned_at = $3
		  , completed_at = $4
		  , completed_by = $5
		  , decision = $6
		  , comments = $7
		  , revision_count = $8
		  , escalated_at = $9
		WHERE id = $1
	`, id, string(execution.Status), execution.AssignedAt, execution.CompletedAt,
		execution.CompletedBy, decision, execution.Comments, execution.RevisionCount, execution.EscalatedAt)
	if err != nil {
		return persistence.NewStepExecutionError("UpdateStatus", id, err)
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewStepExecutionError("UpdateStatus", id, err)
	}

	return nil
}

// SkipRemaining marks every non-terminal execution of the instance as
// skipped in one statement, returning the affected executions.
func (r *StepExecutionRepository) SkipRemaining(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	query := `
		UPDATE workflow_step_executions
		SET status = 'skipped'
		WHERE instance_id = $1 AND status IN ('pending', 'in_progress')
		RETURNING ` + executionColumns

	executions, err := r.queryExecutions(ctx, query, instanceID)
	if err != nil {
		return nil, persistence.NewStepExecutionError("SkipRemaining", instanceID, err)
	}

	return executions, nil
}

func (r *StepExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.WorkflowStepExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowStepExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.WorkflowStepExecution, error) {
	var (
		execution models.WorkflowStepExecution
		status    string
		decision  *string
	)

	err := row.Scan(
		&execution.ID, &execution.InstanceID, &execution.StepID, &execution.StepOrder,
		&status, &execution.AssigneeID, &execution.AssignedAt, &execution.CompletedAt,
		&execution.CompletedBy, &decision, &execution.Comments,
		&execution.RevisionCount, &execution.EscalatedAt)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if decision != nil {
		d := models.Decision(*decision)
		execution.Decision = &d
	}

	return &execution, nil
}
