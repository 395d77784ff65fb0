package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/approvio/approvio/pkg/eventbus"
	"github.com/approvio/approvio/pkg/events"
	"github.com/approvio/approvio/pkg/models"
)

// EventPublisher emits workflow lifecycle events on the event bus. Event
// publication is observational: failures are logged and never fail or roll
// back the state transition that triggered them. A nil publisher is a no-op,
// for setups without a bus.
type EventPublisher struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

// NewEventPublisher creates an event publisher over the given bus.
func NewEventPublisher(bus eventbus.EventBus, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:    bus,
		logger: logger.With("module", "workflow_events"),
	}
}

func (p *EventPublisher) base(instance *models.WorkflowInstance) events.BaseEvent {
	return events.BaseEvent{
		ID:         p.bus.GenerateID(),
		Timestamp:  time.Now().UTC(),
		InstanceID: instance.ID,
		SubjectID:  instance.SubjectID,
	}
}

func (p *EventPublisher) publish(ctx context.Context, key string, event eventbus.Event) {
	err := p.bus.Publish(ctx, key, event)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish workflow event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

// InstanceStarted emits a workflow.instance.started event.
func (p *EventPublisher) InstanceStarted(ctx context.Context, instance *models.WorkflowInstance) {
	if p == nil {
		return
	}

	event := events.InstanceStarted{
		BaseEvent:   p.base(instance),
		TemplateID:  instance.TemplateID,
		InitiatedBy: instance.InitiatedBy,
	}
	event.Type = event.GetType()

	p.publish(ctx, instance.ID, event)
}

// InstanceCompleted emits a workflow.instance.completed event.
func (p *EventPublisher) InstanceCompleted(ctx context.Context, instance *models.WorkflowInstance, completedAt time.Time) {
	if p == nil {
		return
	}

	event := events.InstanceCompleted{
		BaseEvent: p.base(instance),
		Duration:  completedAt.Sub(instance.StartedAt),
	}
	event.Type = event.GetType()

	p.publish(ctx, instance.ID, event)
}

// InstanceCancelled emits a workflow.instance.cancelled event.
func (p *EventPublisher) InstanceCancelled(ctx context.Context, instance *models.WorkflowInstance, reason string) {
	if p == nil {
		return
	}

	event := events.InstanceCancelled{
		BaseEvent: p.base(instance),
		Reason:    reason,
	}
	event.Type = event.GetType()

	p.publish(ctx, instance.ID, event)
}

// StepActivated emits a workflow.step.activated event.
func (p *EventPublisher) StepActivated(ctx context.Context, instance *models.WorkflowInstance, execution *models.WorkflowStepExecution) {
	if p == nil {
		return
	}

	event := events.StepActivated{
		BaseEvent:       p.base(instance),
		StepExecutionID: execution.ID,
		StepID:          execution.StepID,
		AssigneeID:      execution.AssigneeID,
	}
	event.Type = event.GetType()

	p.publish(ctx, instance.ID, event)
}

// StepCompleted emits a workflow.step.completed event.
func (p *EventPublisher) StepCompleted(ctx context.Context, instance *models.WorkflowInstance, execution *models.WorkflowStepExecution, decision models.Decision, actor string) {
	if p == nil {
		return
	}

	event := events.StepCompleted{
		BaseEvent:       p.base(instance),
		StepExecutionID: execution.ID,
		StepID:          execution.StepID,
		Decision:        decision,
		CompletedBy:     actor,
	}
	event.Type = event.GetType()

	p.publish(ctx, instance.ID, event)
}

// StepChangesRequested emits a workflow.step.changes_requested event.
func (p *EventPublisher) StepChangesRequested(ctx context.Context, instance *models.WorkflowInstance, execution *models.WorkflowStepExecution, actor string) {
	if p == nil {
		return
	}

	event := events.StepChangesRequested{
		BaseEvent:       p.base(instance),
		StepExecutionID: execution.ID,
		RequestedBy:     actor,
		RevisionCount:   execution.RevisionCount + 1,
	}
	event.Type = event.GetType()

	p.publish(ctx, instance.ID, event)
}
