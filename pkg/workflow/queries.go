package workflow

import (
	"context"
	"fmt"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

// PendingTask joins an in-progress step execution with the template step
// metadata an assignee needs to act on it.
type PendingTask struct {
	Execution    *models.WorkflowStepExecution `json:"execution"`
	Step         models.WorkflowStep           `json:"step"`
	InstanceID   string                        `json:"instance_id"`
	SubjectID    string                        `json:"subject_id"`
	TemplateID   string                        `json:"template_id"`
	TemplateName string                        `json:"template_name"`
}

// GetInstance returns the instance with the given id.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.persistence.InstanceRepository().GetByID(ctx, instanceID)
}

// GetInstancesForSubject returns every instance bound to the subject.
func (e *Engine) GetInstancesForSubject(ctx context.Context, subjectID string) ([]*models.WorkflowInstance, error) {
	return e.persistence.InstanceRepository().ListBySubject(ctx, subjectID)
}

// GetStepExecutions returns the instance's step executions in activation order.
func (e *Engine) GetStepExecutions(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	if _, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID); err != nil {
		return nil, err
	}

	return e.persistence.StepExecutionRepository().ListByInstance(ctx, instanceID)
}

// GetPendingTasks returns every in-progress step execution assigned to the
// actor, joined with its template step metadata.
func (e *Engine) GetPendingTasks(ctx context.Context, assigneeID string) ([]PendingTask, error) {
	executions, err := e.persistence.StepExecutionRepository().ListInProgressForAssignee(ctx, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending executions for %s: %w", assigneeID, err)
	}

	tasks := make([]PendingTask, 0, len(executions))
	instanceCache := make(map[string]*models.WorkflowInstance)
	templateCache := make(map[string]*models.WorkflowTemplate)

	for _, execution := range executions {
		instance, ok := instanceCache[execution.InstanceID]
		if !ok {
			instance, err = e.persistence.InstanceRepository().GetByID(ctx, execution.InstanceID)
			if err != nil {
				if persistence.IsInstanceNotFound(err) {
					continue
				}

				return nil, err
			}

			instanceCache[execution.InstanceID] = instance
		}

		template, ok := templateCache[instance.TemplateID]
		if !ok {
			template, err = e.templates.GetByID(ctx, instance.TemplateID)
			if err != nil {
				return nil, err
			}

			templateCache[instance.TemplateID] = template
		}

		step, _ := template.StepByID(execution.StepID)

		tasks = append(tasks, PendingTask{
			Execution:    execution,
			Step:         step,
			InstanceID:   instance.ID,
			SubjectID:    instance.SubjectID,
			TemplateID:   template.ID,
			TemplateName: template.Name,
		})
	}

	return tasks, nil
}
