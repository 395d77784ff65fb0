package services

import (
	"context"
	"fmt"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Template is the template registry: it stores and retrieves reusable
// workflow definitions and owns their validation rules.
type Template struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewTemplate creates a new template registry service.
func NewTemplate(persistence persistence.Persistence, validate *validator.Validate) *Template {
	if validate == nil {
		validate = validator.New()
	}

	return &Template{
		persistence: persistence,
		validator:   validate,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and persists a new template. New templates start active.
func (s *Template) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if err := s.validate(template); err != nil {
		return nil, err
	}

	template.ID = ""
	template.Active = true

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// GetByID returns the template with the given id.
func (s *Template) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return s.persistence.TemplateRepository().GetByID(ctx, id)
}

// List returns every stored template.
func (s *Template) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return s.persistence.TemplateRepository().List(ctx)
}

// FindForTrigger returns active templates matching the trigger event and
// subject filters. The engine uses it to select workflows to start.
func (s *Template) FindForTrigger(ctx context.Context, trigger models.TriggerKind, subjectCategory, subjectType string) ([]*models.WorkflowTemplate, error) {
	if !trigger.Valid() {
		return nil, NewValidationError("FindForTrigger", string(trigger), ErrInvalidTrigger)
	}

	return s.persistence.TemplateRepository().ListForTrigger(ctx, trigger, subjectCategory, subjectType)
}

// SetActive activates or deactivates a template. Deactivated templates stop
// matching triggers but remain stored while instances reference them.
func (s *Template) SetActive(ctx context.Context, id string, active bool) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	template.Active = active

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

// Delete removes a template. Templates referenced by instances are never
// silently deleted; the persistence layer refuses with ErrTemplateInUse.
func (s *Template) Delete(ctx context.Context, id string) error {
	return s.persistence.TemplateRepository().Delete(ctx, id)
}

// validate applies struct validation plus the semantic rules the tags
// cannot express: unique strictly-increasing step orders and resolvable
// assignees.
func (s *Template) validate(template *models.WorkflowTemplate) error {
	if template == nil {
		return NewValidationError("Create", "", ErrTemplateNil)
	}

	if err := s.validator.Struct(template); err != nil {
		return NewValidationError("Create", err.Error(), ErrInvalidRequest)
	}

	if !template.Trigger.Valid() {
		return NewValidationError("Create", string(template.Trigger), ErrInvalidTrigger)
	}

	if len(template.Steps) == 0 {
		return NewValidationError("Create", template.Name, ErrStepsRequired)
	}

	seen := make(map[int]bool, len(template.Steps))
	lastOrder := 0

	for i := range template.Steps {
		step := &template.Steps[i]

		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", step.Order)
		}

		if seen[step.Order] {
			return NewValidationError("Create", step.Name, ErrDuplicateStepOrder)
		}

		seen[step.Order] = true

		if step.Order <= lastOrder {
			return NewValidationError("Create", step.Name, ErrNonIncreasingOrder)
		}

		lastOrder = step.Order

		if step.AssigneeID == "" && step.AssigneeType != models.AssigneeSystem {
			return NewValidationError("Create", step.Name, ErrUnresolvableAssignee)
		}
	}

	return nil
}
