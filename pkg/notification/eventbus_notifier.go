package notification

import (
	"context"
	"time"

	"github.com/approvio/approvio/pkg/eventbus"
	"github.com/approvio/approvio/pkg/events"
)

// EventBusNotifier publishes step-assigned events on the workflow event bus;
// downstream consumers (mail, chat, task inboxes) deliver them.
type EventBusNotifier struct {
	bus eventbus.EventBus
}

// NewEventBusNotifier creates a notifier backed by the given event bus.
func NewEventBusNotifier(bus eventbus.EventBus) *EventBusNotifier {
	return &EventBusNotifier{bus: bus}
}

// Notify publishes a step-assigned event keyed by the instance id.
func (n *EventBusNotifier) Notify(ctx context.Context, assigneeID string, stepCtx StepContext) error {
	event := events.StepAssigned{
		BaseEvent: events.BaseEvent{
			ID:         n.bus.GenerateID(),
			Timestamp:  time.Now().UTC(),
			InstanceID: stepCtx.InstanceID,
			SubjectID:  stepCtx.SubjectID,
		},
		StepExecutionID: stepCtx.StepExecutionID,
		StepName:        stepCtx.StepName,
		AssigneeID:      assigneeID,
		Overdue:         stepCtx.Overdue,
	}
	event.Type = event.GetType()

	return n.bus.Publish(ctx, stepCtx.InstanceID, event)
}
