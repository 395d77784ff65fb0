// Package models defines the core domain models for approval workflow orchestration.
package models

import "time"

// TriggerKind identifies the subject event that causes template selection
// and instance start.
type TriggerKind string

const (
	TriggerSubjectCreated TriggerKind = "subject.created"
	TriggerSubjectUpdated TriggerKind = "subject.updated"
	TriggerSubjectExpired TriggerKind = "subject.expired"
	TriggerManual         TriggerKind = "manual"
)

// Valid reports whether the trigger kind is one of the known kinds.
func (t TriggerKind) Valid() bool {
	switch t {
	case TriggerSubjectCreated, TriggerSubjectUpdated, TriggerSubjectExpired, TriggerManual:
		return true
	}

	return false
}

// WorkflowTemplate is a reusable, ordered definition of approval/review steps
// for a trigger and optional subject filters. Steps are owned by the template
// aggregate and loaded eagerly; they are immutable once an instance
// references the template.
type WorkflowTemplate struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"             validate:"required,min=3"`
	Description     string         `json:"description"`
	Trigger         TriggerKind    `json:"trigger"          validate:"required"`
	SubjectCategory string         `json:"subject_category,omitempty"` // Empty matches any category
	SubjectType     string         `json:"subject_type,omitempty"`     // Empty matches any type
	Steps           []WorkflowStep `json:"steps"            validate:"required,min=1,dive"`
	Active          bool           `json:"active"`
	CreatedBy       string         `json:"created_by"       validate:"required"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// StepByID returns the template step with the given id.
func (t *WorkflowTemplate) StepByID(stepID string) (WorkflowStep, bool) {
	for _, step := range t.Steps {
		if step.ID == stepID {
			return step, true
		}
	}

	return WorkflowStep{}, false
}

// Matches reports whether the template applies to the given trigger and
// subject filters. Empty template filters match any value.
func (t *WorkflowTemplate) Matches(trigger TriggerKind, subjectCategory, subjectType string) bool {
	if t.Trigger != trigger {
		return false
	}

	if t.SubjectCategory != "" && t.SubjectCategory != subjectCategory {
		return false
	}

	if t.SubjectType != "" && t.SubjectType != subjectType {
		return false
	}

	return true
}
