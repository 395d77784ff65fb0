package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstancePending    InstanceStatus = "pending"     // Created, first step not yet activated
	InstanceInProgress InstanceStatus = "in_progress" // At least one step activated
	InstanceCompleted  InstanceStatus = "completed"   // Every step reached a terminal state
	InstanceCancelled  InstanceStatus = "cancelled"   // Rejected or explicitly cancelled
)

// IsTerminal reports whether the status admits no further transitions.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceCompleted || s == InstanceCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Terminal statuses admit nothing; instances are never reopened.
func (s InstanceStatus) CanTransitionTo(next InstanceStatus) bool {
	switch s {
	case InstancePending:
		return next == InstanceInProgress || next == InstanceCompleted || next == InstanceCancelled
	case InstanceInProgress:
		return next == InstanceCompleted || next == InstanceCancelled
	default:
		return false
	}
}

// WorkflowInstance is one running execution of a template bound to a
// specific subject. It progresses monotonically toward completed or
// cancelled and is never reopened.
type WorkflowInstance struct {
	ID                     string         `json:"id"`
	TemplateID             string         `json:"template_id"`
	SubjectID              string         `json:"subject_id"`
	Status                 InstanceStatus `json:"status"`
	CurrentStepExecutionID *string        `json:"current_step_execution_id,omitempty"`
	InitiatedBy            string         `json:"initiated_by"`
	StartedAt              time.Time      `json:"started_at"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
	CancelReason           string         `json:"cancel_reason,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
}
