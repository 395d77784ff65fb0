package models

import "time"

// StepKind categorizes what a template step asks of its assignee.
type StepKind string

const (
	StepKindApproval     StepKind = "approval"
	StepKindReview       StepKind = "review"
	StepKindNotification StepKind = "notification"
	StepKindAction       StepKind = "action"
)

// AssigneeType identifies the class of entity responsible for a step.
type AssigneeType string

const (
	AssigneeUser       AssigneeType = "user"
	AssigneeRole       AssigneeType = "role"
	AssigneeDepartment AssigneeType = "department"
	AssigneeSystem     AssigneeType = "system"
)

// TimeoutPolicy decides what the timeout sweep does with an overdue step.
type TimeoutPolicy string

const (
	// TimeoutEscalate re-notifies the assignee with an overdue flag.
	TimeoutEscalate TimeoutPolicy = "escalate"
	// TimeoutReject submits a system reject decision, cancelling the instance.
	TimeoutReject TimeoutPolicy = "reject"
)

// WorkflowStep is one ordered step inside a template. Order is strictly
// increasing and unique within the template; activation always proceeds in
// that order.
type WorkflowStep struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"            validate:"required"`
	Kind           StepKind      `json:"kind"            validate:"required,oneof=approval review notification action"`
	AssigneeType   AssigneeType  `json:"assignee_type"   validate:"required,oneof=user role department system"`
	AssigneeID     string        `json:"assignee_id"`
	Order          int           `json:"order"           validate:"required,min=1"`
	Required       bool          `json:"required"`
	TimeoutSeconds int64         `json:"timeout_seconds,omitempty" validate:"min=0"`
	OnTimeout      TimeoutPolicy `json:"on_timeout,omitempty"      validate:"omitempty,oneof=escalate reject"`
	AutoApprove    bool          `json:"auto_approve"`
	Conditions     []Condition   `json:"conditions,omitempty"      validate:"dive"`
}

// Timeout returns the step timeout as a duration, or zero when the step has
// no deadline.
func (s WorkflowStep) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// TimeoutPolicyOrDefault returns the configured timeout policy, defaulting
// to escalation.
func (s WorkflowStep) TimeoutPolicyOrDefault() TimeoutPolicy {
	if s.OnTimeout == "" {
		return TimeoutEscalate
	}

	return s.OnTimeout
}
