// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/approvio/approvio/pkg/models"

// CreateTemplateRequest represents the request body for creating a workflow
// template.
type CreateTemplateRequest struct {
	Name            string                `json:"name"                       validate:"required,min=3"`
	Description     string                `json:"description,omitempty"`
	Trigger         models.TriggerKind    `json:"trigger"                    validate:"required"`
	SubjectCategory string                `json:"subject_category,omitempty"`
	SubjectType     string                `json:"subject_type,omitempty"`
	Steps           []models.WorkflowStep `json:"steps"                      validate:"required,min=1"`
	CreatedBy       string                `json:"created_by"                 validate:"required"`
}

// SetTemplateActiveRequest toggles whether a template matches triggers.
type SetTemplateActiveRequest struct {
	Active bool `json:"active"`
}

// StartWorkflowRequest represents the request body for starting an instance
// of a specific template.
type StartWorkflowRequest struct {
	TemplateID  string         `json:"template_id"        validate:"required"`
	SubjectID   string         `json:"subject_id"         validate:"required"`
	InitiatedBy string         `json:"initiated_by"       validate:"required"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TriggerWorkflowsRequest represents the request body for trigger fan-out:
// one instance is started per matching active template.
type TriggerWorkflowsRequest struct {
	Trigger         models.TriggerKind `json:"trigger"                    validate:"required"`
	SubjectID       string             `json:"subject_id"                 validate:"required"`
	SubjectCategory string             `json:"subject_category,omitempty"`
	SubjectType     string             `json:"subject_type,omitempty"`
	InitiatedBy     string             `json:"initiated_by"               validate:"required"`
}

// DecisionRequest represents the request body for deciding a step execution.
type DecisionRequest struct {
	Actor    string          `json:"actor"              validate:"required"`
	Decision models.Decision `json:"decision"           validate:"required"`
	Comments *string         `json:"comments,omitempty"`
}

// CancelInstanceRequest represents the request body for cancelling an
// instance.
type CancelInstanceRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// InstanceResponse bundles an instance with its step executions.
type InstanceResponse struct {
	Instance   *models.WorkflowInstance        `json:"instance"`
	Executions []*models.WorkflowStepExecution `json:"step_executions,omitempty"`
}
