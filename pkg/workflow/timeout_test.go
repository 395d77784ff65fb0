package workflow

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTimeoutSweeper(f *engineFixture, clock func() time.Time) *TimeoutSweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewTimeoutSweeper(f.persistence, f.engine, logger)
	if clock != nil {
		s.now = clock
	}

	return s
}

func timedStep(policy models.TimeoutPolicy) models.WorkflowStep {
	return models.WorkflowStep{
		Name:           "Manager review",
		Kind:           models.StepKindReview,
		AssigneeType:   models.AssigneeUser,
		AssigneeID:     "alice",
		Order:          1,
		Required:       true,
		TimeoutSeconds: 60,
		OnTimeout:      policy,
	}
}

func TestTimeoutSweeper_EscalatesOnce(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, timedStep(models.TimeoutEscalate))

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	future := func() time.Time { return time.Now().UTC().Add(time.Hour) }
	sweeper := newTimeoutSweeper(f, future)

	require.NoError(t, sweeper.Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionInProgress, executions[0].Status, "escalation never completes the step")
	assert.NotNil(t, executions[0].EscalatedAt)

	// Activation notification plus one overdue reminder.
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, "alice", mock.MatchedBy(func(c notification.StepContext) bool {
		return c.Overdue
	}))

	// A second pass finds EscalatedAt set and stays quiet.
	require.NoError(t, sweeper.Sweep(t.Context()))
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestTimeoutSweeper_RejectPolicyCancelsInstance(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t,
		timedStep(models.TimeoutReject),
		models.WorkflowStep{Name: "Finance approval", Kind: models.StepKindApproval, AssigneeType: models.AssigneeUser, AssigneeID: "bob", Order: 2, Required: true},
	)

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	sweeper := newTimeoutSweeper(f, func() time.Time { return time.Now().UTC().Add(time.Hour) })
	require.NoError(t, sweeper.Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
	require.NotNil(t, executions[0].Decision)
	assert.Equal(t, models.DecisionReject, *executions[0].Decision)
	assert.Equal(t, models.SystemActor, *executions[0].CompletedBy)
	require.NotNil(t, executions[0].Comments)
	assert.Contains(t, *executions[0].Comments, "timed out")

	assert.Equal(t, models.ExecutionSkipped, executions[1].Status)

	instance, err = f.engine.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceCancelled, instance.Status)
}

func TestTimeoutSweeper_IgnoresStepsWithinDeadline(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, timedStep(models.TimeoutEscalate))

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	sweeper := newTimeoutSweeper(f, nil)
	require.NoError(t, sweeper.Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Nil(t, executions[0].EscalatedAt)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestTimeoutSweeper_IgnoresStepsWithoutTimeout(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, twoSteps()...)

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	sweeper := newTimeoutSweeper(f, func() time.Time { return time.Now().UTC().Add(24 * time.Hour) })
	require.NoError(t, sweeper.Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionInProgress, executions[0].Status)
	assert.Nil(t, executions[0].EscalatedAt)
}
