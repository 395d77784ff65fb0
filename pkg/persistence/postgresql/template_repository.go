package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/google/uuid"
)

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id
  , name
  , description
  , trigger
  , subject_category
  , subject_type
  , steps
  , active
  , created_by
  , created_at
  , updated_at
`

// Save inserts or updates a template.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewTemplateError("Save", "", fmt.Errorf("failed to generate template ID: %w", err))
		}

		template.ID = id.String()
	}

	steps, err := json.Marshal(template.Steps)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, fmt.Errorf("failed to marshal steps: %w", err))
	}

	query := `
		INSERT INTO workflow_templates (id, name, description, trigger, subject_category, subject_type, steps, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , trigger = EXCLUDED.trigger
		  , subject_category = EXCLUDED.subject_category
		  , subject_type = EXCLUDED.subject_type
		  , steps = EXCLUDED.steps
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID, template.Name, template.Description, string(template.Trigger),
		template.SubjectCategory, template.SubjectType, steps, template.Active,
		template.CreatedBy, template.CreatedAt, template.UpdatedAt)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

// GetByID returns the template with the given id.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return template, nil
}

// List returns every stored template, newest first.
func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates ORDER BY created_at DESC`

	return r.queryTemplates(ctx, query)
}

// ListForTrigger returns active templates matching the trigger and subject filters.
func (r *TemplateRepository) ListForTrigger(ctx context.Context, trigger models.TriggerKind, subjectCategory, subjectType string) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE active
		  AND trigger = $1
		  AND (subject_category = '' OR subject_category = $2)
		  AND (subject_type = '' OR subject_type = $3)
		ORDER BY created_at DESC
	`

	return r.queryTemplates(ctx, query, string(trigger), subjectCategory, subjectType)
}

// Delete removes a template unless instances still reference it.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM workflow_templates
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM workflow_instances WHERE template_id = $1)
	`, id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_templates WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return persistence.NewTemplateError("Delete", id, err)
		}

		if exists {
			return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateInUse)
		}

		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	return nil
}

func (r *TemplateRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]*models.WorkflowTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template models.WorkflowTemplate
		trigger  string
		steps    []byte
	)

	err := row.Scan(
		&template.ID, &template.Name, &template.Description, &trigger,
		&template.SubjectCategory, &template.SubjectType, &steps,
		&template.Active, &template.CreatedBy, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		return nil, err
	}

	template.Trigger = models.TriggerKind(trigger)

	if err := json.Unmarshal(steps, &template.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	return &template, nil
}
