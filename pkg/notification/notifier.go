// Package notification provides the dispatcher that informs assignees a
// workflow step awaits their decision. Dispatch is fire-and-forget: failures
// are logged as warnings by callers and never roll back the engine operation
// that triggered them.
package notification

import "context"

// StepContext carries what an assignee needs to act on a step.
type StepContext struct {
	InstanceID      string `json:"instance_id"`
	SubjectID       string `json:"subject_id"`
	StepExecutionID string `json:"step_execution_id"`
	StepID          string `json:"step_id"`
	StepName        string `json:"step_name"`
	TemplateName    string `json:"template_name"`
	Overdue         bool   `json:"overdue,omitempty"`
}

// Notifier dispatches a notification to an assignee.
type Notifier interface {
	Notify(ctx context.Context, assigneeID string, stepCtx StepContext) error
}
