package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/google/uuid"
)

const templatesDir = "templates"

// TemplateRepository handles template-related file operations.
type TemplateRepository struct {
	store *Persistence
}

// Save persists a template, generating an id and timestamps when absent.
func (r *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if err := r.store.write(templatesDir, template.ID, template); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

// GetByID returns the template with the given id.
func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(id)
}

func (r *TemplateRepository) getLocked(id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	if err := r.store.read(templatesDir, id, &template); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return &template, nil
}

// List returns every stored template, newest first.
func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.listLocked()
}

func (r *TemplateRepository) listLocked() ([]*models.WorkflowTemplate, error) {
	ids, err := r.store.ids(templatesDir)
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		template, err := r.getLocked(id)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

// ListForTrigger returns active templates matching the trigger and subject filters.
func (r *TemplateRepository) ListForTrigger(ctx context.Context, trigger models.TriggerKind, subjectCategory, subjectType string) ([]*models.WorkflowTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.listLocked()
	if err != nil {
		return nil, err
	}

	matching := make([]*models.WorkflowTemplate, 0)

	for _, template := range all {
		if template.Active && template.Matches(trigger, subjectCategory, subjectType) {
			matching = append(matching, template)
		}
	}

	return matching, nil
}

// Delete removes a template unless instances still reference it.
func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.getLocked(id); err != nil {
		return err
	}

	count, err := r.store.instanceRepo.countByTemplateLocked(id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	if count > 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateInUse)
	}

	if err := r.store.remove(templatesDir, id); err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	return nil
}
