// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/approvio/approvio/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "approvio.events" // Topic for workflow lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "workflow.instance.started"
	InstanceCompletedEvent EventType = "workflow.instance.completed"
	InstanceCancelledEvent EventType = "workflow.instance.cancelled"

	// Step execution lifecycle events.
	StepActivatedEvent      EventType = "workflow.step.activated"
	StepCompletedEvent      EventType = "workflow.step.completed"
	StepChangesRequestEvent EventType = "workflow.step.changes_requested"
	StepAssignedEvent       EventType = "workflow.step.assigned"
	StepEscalatedEvent      EventType = "workflow.step.escalated"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	SubjectID  string         `json:"subject_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type InstanceStarted struct {
	BaseEvent

	TemplateID  string `json:"template_id"`
	InitiatedBy string `json:"initiated_by"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceCancelled struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type StepActivated struct {
	BaseEvent

	StepExecutionID string `json:"step_execution_id"`
	StepID          string `json:"step_id"`
	AssigneeID      string `json:"assignee_id"`
}

func (e StepActivated) GetType() EventType {
	return StepActivatedEvent
}

type StepCompleted struct {
	BaseEvent

	StepExecutionID string          `json:"step_execution_id"`
	StepID          string          `json:"step_id"`
	Decision        models.Decision `json:"decision"`
	CompletedBy     string          `json:"completed_by"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepChangesRequested struct {
	BaseEvent

	StepExecutionID string `json:"step_execution_id"`
	RequestedBy     string `json:"requested_by"`
	RevisionCount   int    `json:"revision_count"`
}

func (e StepChangesRequested) GetType() EventType {
	return StepChangesRequestEvent
}

// StepAssigned carries a notification payload for the assignee of a newly
// activated (or escalated) step.
type StepAssigned struct {
	BaseEvent

	StepExecutionID string `json:"step_execution_id"`
	StepName        string `json:"step_name"`
	AssigneeID      string `json:"assignee_id"`
	Overdue         bool   `json:"overdue,omitempty"`
}

func (e StepAssigned) GetType() EventType {
	if e.Overdue {
		return StepEscalatedEvent
	}

	return StepAssignedEvent
}
