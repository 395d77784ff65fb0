package models

import "time"

// ExecutionStatus represents the lifecycle state of a step execution.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionSkipped    ExecutionStatus = "skipped"
	ExecutionCancelled  ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionSkipped || s == ExecutionCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal step
// execution transition. Executions only move forward; there is no
// resurrection from a terminal state. An in_progress self-transition is
// allowed so request_changes can record a decision without completing the
// step.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionInProgress || next == ExecutionSkipped || next == ExecutionCancelled
	case ExecutionInProgress:
		return next == ExecutionInProgress || next == ExecutionCompleted ||
			next == ExecutionSkipped || next == ExecutionCancelled
	default:
		return false
	}
}

// Decision is the verdict an actor submits against an in-progress step
// execution.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionReject         Decision = "reject"
	DecisionRequestChanges Decision = "request_changes"
)

// Valid reports whether the decision is one of the known verdicts.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestChanges:
		return true
	}

	return false
}

// SystemActor is the actor recorded for decisions issued by the engine
// itself (auto-approval, timeout rejection).
const SystemActor = "system"

// WorkflowStepExecution tracks one template step's progress within an
// instance. Exactly one execution exists per (instance, template step);
// StepOrder is denormalized from the template for activation ordering.
type WorkflowStepExecution struct {
	ID            string          `json:"id"`
	InstanceID    string          `json:"instance_id"`
	StepID        string          `json:"step_id"`
	StepOrder     int             `json:"step_order"`
	Status        ExecutionStatus `json:"status"`
	AssigneeID    string          `json:"assignee_id"`
	AssignedAt    *time.Time      `json:"assigned_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CompletedBy   *string         `json:"completed_by,omitempty"`
	Decision      *Decision       `json:"decision,omitempty"`
	Comments      *string         `json:"comments,omitempty"`
	RevisionCount int             `json:"revision_count,omitempty"`
	EscalatedAt   *time.Time      `json:"escalated_at,omitempty"`
}

// Overdue reports whether the execution has exceeded the step timeout at
// the given instant. Executions without an assignment time or steps without
// a timeout are never overdue.
func (e *WorkflowStepExecution) Overdue(step WorkflowStep, now time.Time) bool {
	if e.Status != ExecutionInProgress || e.AssignedAt == nil || step.TimeoutSeconds <= 0 {
		return false
	}

	return now.After(e.AssignedAt.Add(step.Timeout()))
}
