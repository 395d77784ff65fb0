package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

// InstanceRepository handles instance-related database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , template_id
  , subject_id
  , status
  , current_step_execution_id
  , initiated_by
  , started_at
  , completed_at
  , cancel_reason
  , metadata
`

// Create persists a new instance.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, fmt.Errorf("failed to marshal metadata: %w", err))
	}

	query := `
		INSERT INTO workflow_instances (id, template_id, subject_id, status, current_step_execution_id, initiated_by, started_at, completed_at, cancel_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.TemplateID, instance.SubjectID, string(instance.Status),
		instance.CurrentStepExecutionID, instance.InitiatedBy, instance.StartedAt,
		instance.CompletedAt, instance.CancelReason, metadata)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	return nil
}

// GetByID returns the instance with the given id.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

// ListBySubject returns every instance bound to the subject, oldest first.
func (r *InstanceRepository) ListBySubject(ctx context.Context, subjectID string) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE subject_id = $1 ORDER BY started_at ASC`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// CountByTemplate reports how many instances reference the template.
func (r *InstanceRepository) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_instances WHERE template_id = $1", templateID).Scan(&count)
	if err != nil {
		return 0, persistence.NewInstanceError("CountByTemplate", templateID, err)
	}

	return count, nil
}

// UpdateStatus conditionally moves the instance from one status to another.
// The row is locked for the duration of the transaction so the status check
// and the mutated write are a single atomic step; a stale precondition
// surfaces as ErrConcurrencyConflict.
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id string, from, to models.InstanceStatus, mutate persistence.InstanceMutation) error {
	if !from.CanTransitionTo(to) {
		return persistence.NewInstanceError("UpdateStatus", id, persistence.ErrInvalidTransition)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewInstanceError("UpdateStatus", id, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1 FOR UPDATE`

	instance, err := scanInstance(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewInstanceError("UpdateStatus", id, persistence.ErrInstanceNotFound)
		}

		return persistence.NewInstanceError("UpdateStatus", id, err)
	}

	if instance.Status != from {
		return persistence.NewInstanceError("UpdateStatus", id, persistence.ErrConcurrencyConflict)
	}

	instance.Status = to

	if mutate != nil {
		mutate(instance)
	}

	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return persistence.NewInstanceError("UpdateStatus", id, fmt.Errorf("failed to marshal metadata: %w", err))
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = $2
		  , current_step_execution_id = $3
		  , completed_at = $4
		  , cancel_reason = $5
		  , metadata = $6
		WHERE id = $1
	`, id, string(instance.Status), instance.CurrentStepExecutionID, instance.CompletedAt, instance.CancelReason, metadata)
	if err != nil {
		return persistence.NewInstanceError("UpdateStatus", id, err)
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewInstanceError("UpdateStatus", id, err)
	}

	return nil
}

// SetCurrentStep updates the instance's active step execution pointer.
func (r *InstanceRepository) SetCurrentStep(ctx context.Context, id string, stepExecutionID *string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_instances SET current_step_execution_id = $2 WHERE id = $1", id, stepExecutionID)
	if err != nil {
		return persistence.NewInstanceError("SetCurrentStep", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("SetCurrentStep", id, err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("SetCurrentStep", id, persistence.ErrInstanceNotFound)
	}

	return nil
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance models.WorkflowInstance
		status   string
		metadata []byte
	)

	err := row.Scan(
		&instance.ID, &instance.TemplateID, &instance.SubjectID, &status,
		&instance.CurrentStepExecutionID, &instance.InitiatedBy, &instance.StartedAt,
		&instance.CompletedAt, &instance.CancelReason, &metadata)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &instance.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &instance, nil
}
