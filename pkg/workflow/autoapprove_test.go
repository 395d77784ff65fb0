package workflow

import (
	"io"
	"log/slog"
	"testing"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/subject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func autoApproveSteps() []models.WorkflowStep {
	return []models.WorkflowStep{
		{
			Name:         "Compliance check",
			Kind:         models.StepKindApproval,
			AssigneeType: models.AssigneeSystem,
			Order:        1,
			Required:     true,
			AutoApprove:  true,
			Conditions: []models.Condition{
				{Attribute: "amount", Operator: models.OpLessThan, Value: 1000},
			},
		},
		{Name: "Finance approval", Kind: models.StepKindApproval, AssigneeType: models.AssigneeUser, AssigneeID: "bob", Order: 2, Required: true},
	}
}

func newAutoApprover(f *engineFixture, subjects subject.AttributeReader) *AutoApprover {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewAutoApprover(f.persistence, f.engine, subjects, logger)
}

func TestAutoApprover_ApprovesWhenConditionsHold(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, autoApproveSteps()...)

	subjects := subject.NewStaticReader()
	subjects.Set("doc-1", map[string]any{"amount": 250})

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	require.NoError(t, newAutoApprover(f, subjects).Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
	require.NotNil(t, executions[0].CompletedBy)
	assert.Equal(t, models.SystemActor, *executions[0].CompletedBy)
	require.NotNil(t, executions[0].Decision)
	assert.Equal(t, models.DecisionApprove, *executions[0].Decision)

	// The instance advanced to the human step.
	assert.Equal(t, models.ExecutionInProgress, executions[1].Status)

	instance, err = f.engine.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceInProgress, instance.Status)
	assert.Equal(t, executions[1].ID, *instance.CurrentStepExecutionID)
}

func TestAutoApprover_LeavesStepWhenConditionsFail(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, autoApproveSteps()...)

	subjects := subject.NewStaticReader()
	subjects.Set("doc-1", map[string]any{"amount": 5000})

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	require.NoError(t, newAutoApprover(f, subjects).Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionInProgress, executions[0].Status)
	assert.Nil(t, executions[0].Decision)
}

func TestAutoApprover_SkipsNonAutoApproveSteps(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, twoSteps()...)

	subjects := subject.NewStaticReader()
	subjects.Set("doc-1", map[string]any{"amount": 1})

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)

	require.NoError(t, newAutoApprover(f, subjects).Sweep(t.Context()))

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionInProgress, executions[0].Status)
}

func TestAutoApprover_IgnoresCancelledInstances(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, autoApproveSteps()...)

	subjects := subject.NewStaticReader()
	subjects.Set("doc-1", map[string]any{"amount": 250})

	instance, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.Cancel(t.Context(), instance.ID, "withdrawn"))

	require.NoError(t, newAutoApprover(f, subjects).Sweep(t.Context()))

	cancelled, err := f.engine.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceCancelled, cancelled.Status)

	executions, err := f.engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)

	for _, execution := range executions {
		assert.Equal(t, models.ExecutionSkipped, execution.Status)
	}
}

func TestAutoApprover_ContinuesPastSubjectErrors(t *testing.T) {
	f := newEngineFixture(t)
	template := f.createTemplate(t, autoApproveSteps()...)

	subjects := subject.NewStaticReader()
	// doc-1 has no attributes; doc-2 qualifies.
	subjects.Set("doc-2", map[string]any{"amount": 10})

	broken, err := f.engine.Start(t.Context(), template.ID, "doc-1", "carol", nil)
	require.NoError(t, err)
	healthy, err := f.engine.Start(t.Context(), template.ID, "doc-2", "carol", nil)
	require.NoError(t, err)

	require.NoError(t, newAutoApprover(f, subjects).Sweep(t.Context()))

	brokenExecs, err := f.engine.GetStepExecutions(t.Context(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionInProgress, brokenExecs[0].Status)

	healthyExecs, err := f.engine.GetStepExecutions(t.Context(), healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, healthyExecs[0].Status)
}
