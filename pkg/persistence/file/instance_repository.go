package file

import (
	"context"
	"os"
	"sort"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

const instancesDir = "instances"

// InstanceRepository handles instance-related file operations.
type InstanceRepository struct {
	store *Persistence
}

// Create persists a new instance.
func (r *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.write(instancesDir, instance.ID, instance); err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	return nil
}

// GetByID returns the instance with the given id.
func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(id)
}

func (r *InstanceRepository) getLocked(id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	if err := r.store.read(instancesDir, id, &instance); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return &instance, nil
}

// ListBySubject returns every instance bound to the subject, oldest first.
func (r *InstanceRepository) ListBySubject(_ context.Context, subjectID string) ([]*models.WorkflowInstance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := r.store.ids(instancesDir)
	if err != nil {
		return nil, err
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, id := range ids {
		instance, err := r.getLocked(id)
		if err != nil {
			return nil, err
		}

		if instance.SubjectID == subjectID {
			instances = append(instances, instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].StartedAt.Before(instances[j].StartedAt)
	})

	return instances, nil
}

// CountByTemplate reports how many instances reference the template.
func (r *InstanceRepository) CountByTemplate(_ context.Context, templateID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.countByTemplateLocked(templateID)
}

func (r *InstanceRepository) countByTemplateLocked(templateID string) (int, error) {
	ids, err := r.store.ids(instancesDir)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, id := range ids {
		instance, err := r.getLocked(id)
		if err != nil {
			return 0, err
		}

		if instance.TemplateID == templateID {
			count++
		}
	}

	return count, nil
}

// UpdateStatus conditionally moves the instance from one status to another.
// A stale precondition surfaces as ErrConcurrencyConflict.
func (r *InstanceRepository) UpdateStatus(_ context.Context, id string, from, to models.InstanceStatus, mutate persistence.InstanceMutation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	instance, err := r.getLocked(id)
	if err != nil {
		return err
	}

	if instance.Status != from {
		return persistence.NewInstanceError("UpdateStatus", id, persistence.ErrConcurrencyConflict)
	}

	if !from.CanTransitionTo(to) {
		return persistence.NewInstanceError("UpdateStatus", id, persistence.ErrInvalidTransition)
	}

	instance.Status = to

	if mutate != nil {
		mutate(instance)
	}

	if err := r.store.write(instancesDir, id, instance); err != nil {
		return persistence.NewInstanceError("UpdateStatus", id, err)
	}

	return nil
}

// SetCurrentStep updates the instance's active step execution pointer.
func (r *InstanceRepository) SetCurrentStep(_ context.Context, id string, stepExecutionID *string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	instance, err := r.getLocked(id)
	if err != nil {
		return err
	}

	instance.CurrentStepExecutionID = stepExecutionID

	if err := r.store.write(instancesDir, id, instance); err != nil {
		return persistence.NewInstanceError("SetCurrentStep", id, err)
	}

	return nil
}
