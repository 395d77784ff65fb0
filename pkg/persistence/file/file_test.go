package file

import (
	"testing"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestTemplateRepository_SaveAndGet(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.TemplateRepository()

	template := &models.WorkflowTemplate{
		Name:      "Invoice Approval",
		Trigger:   models.TriggerSubjectCreated,
		CreatedBy: "admin",
		Active:    true,
		Steps: []models.WorkflowStep{
			{ID: "step-1", Name: "Manager sign-off", Kind: models.StepKindApproval, AssigneeType: models.AssigneeUser, AssigneeID: "manager", Order: 1},
		},
	}

	require.NoError(t, repo.Save(t.Context(), template))
	assert.NotEmpty(t, template.ID)
	assert.False(t, template.CreatedAt.IsZero())

	fetched, err := repo.GetByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice Approval", fetched.Name)
	assert.Len(t, fetched.Steps, 1)
}

func TestTemplateRepository_GetMissing(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.TemplateRepository().GetByID(t.Context(), "absent")
	require.Error(t, err)
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTemplateRepository_ListForTrigger(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.TemplateRepository()

	save := func(name string, trigger models.TriggerKind, category string, active bool) {
		t.Helper()
		require.NoError(t, repo.Save(t.Context(), &models.WorkflowTemplate{
			Name:            name,
			Trigger:         trigger,
			SubjectCategory: category,
			Active:          active,
			CreatedBy:       "admin",
			Steps:           []models.WorkflowStep{{ID: "s1", Name: "s", Kind: models.StepKindApproval, AssigneeType: models.AssigneeUser, AssigneeID: "u", Order: 1}},
		}))
	}

	save("created-invoice", models.TriggerSubjectCreated, "invoice", true)
	save("created-any", models.TriggerSubjectCreated, "", true)
	save("created-inactive", models.TriggerSubjectCreated, "invoice", false)
	save("updated", models.TriggerSubjectUpdated, "invoice", true)

	matching, err := repo.ListForTrigger(t.Context(), models.TriggerSubjectCreated, "invoice", "")
	require.NoError(t, err)
	require.Len(t, matching, 2)

	for _, template := range matching {
		assert.True(t, template.Active)
		assert.Equal(t, models.TriggerSubjectCreated, template.Trigger)
	}
}

func TestTemplateRepository_DeleteInUse(t *testing.T) {
	p := newTestPersistence(t)

	template := &models.WorkflowTemplate{
		Name:      "Guarded",
		Trigger:   models.TriggerManual,
		CreatedBy: "admin",
		Steps:     []models.WorkflowStep{{ID: "s1", Name: "s", Kind: models.StepKindApproval, AssigneeType: models.AssigneeUser, AssigneeID: "u", Order: 1}},
	}
	require.NoError(t, p.TemplateRepository().Save(t.Context(), template))

	require.NoError(t, p.InstanceRepository().Create(t.Context(), &models.WorkflowInstance{
		ID:         "inst-1",
		TemplateID: template.ID,
		SubjectID:  "doc-1",
		Status:     models.InstanceInProgress,
		StartedAt:  time.Now().UTC(),
	}))

	err := p.TemplateRepository().Delete(t.Context(), template.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrTemplateInUse)
}

func TestInstanceRepository_ConditionalUpdate(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.InstanceRepository()

	instance := &models.WorkflowInstance{
		ID:        "inst-1",
		SubjectID: "doc-1",
		Status:    models.InstancePending,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(t.Context(), instance))

	err := repo.UpdateStatus(t.Context(), "inst-1", models.InstancePending, models.InstanceInProgress, nil)
	require.NoError(t, err)

	// Precondition is now stale.
	err = repo.UpdateStatus(t.Context(), "inst-1", models.InstancePending, models.InstanceInProgress, nil)
	require.Error(t, err)
	assert.True(t, persistence.IsConcurrencyConflict(err))

	fetched, err := repo.GetByID(t.Context(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceInProgress, fetched.Status)
}

func TestInstanceRepository_RejectsIllegalTransition(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.InstanceRepository()

	require.NoError(t, repo.Create(t.Context(), &models.WorkflowInstance{
		ID:     "inst-1",
		Status: models.InstanceCompleted,
	}))

	err := repo.UpdateStatus(t.Context(), "inst-1", models.InstanceCompleted, models.InstanceInProgress, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrInvalidTransition)
}

func TestStepExecutionRepository_ConditionalUpdate(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.StepExecutionRepository()

	require.NoError(t, repo.CreateBatch(t.Context(), []*models.WorkflowStepExecution{
		{ID: "exec-1", InstanceID: "inst-1", StepID: "s1", StepOrder: 1, Status: models.ExecutionInProgress, AssigneeID: "alice"},
	}))

	decision := models.DecisionApprove
	err := repo.UpdateStatus(t.Context(), "exec-1", models.ExecutionInProgress, models.ExecutionCompleted,
		func(e *models.WorkflowStepExecution) {
			e.Decision = &decision
		})
	require.NoError(t, err)

	// A second decision against the same execution loses the precondition.
	err = repo.UpdateStatus(t.Context(), "exec-1", models.ExecutionInProgress, models.ExecutionCompleted, nil)
	require.Error(t, err)
	assert.True(t, persistence.IsConcurrencyConflict(err))

	fetched, err := repo.GetByID(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, fetched.Status)
	require.NotNil(t, fetched.Decision)
	assert.Equal(t, models.DecisionApprove, *fetched.Decision)
}

func TestStepExecutionRepository_OrderingAndSkip(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.StepExecutionRepository()

	require.NoError(t, repo.CreateBatch(t.Context(), []*models.WorkflowStepExecution{
		{ID: "exec-2", InstanceID: "inst-1", StepID: "s2", StepOrder: 2, Status: models.ExecutionPending},
		{ID: "exec-1", InstanceID: "inst-1", StepID: "s1", StepOrder: 1, Status: models.ExecutionCompleted},
		{ID: "exec-3", InstanceID: "inst-1", StepID: "s3", StepOrder: 3, Status: models.ExecutionInProgress},
		{ID: "other", InstanceID: "inst-2", StepID: "s1", StepOrder: 1, Status: models.ExecutionPending},
	}))

	executions, err := repo.ListByInstance(t.Context(), "inst-1")
	require.NoError(t, err)
	require.Len(t, executions, 3)
	assert.Equal(t, []string{"exec-1", "exec-2", "exec-3"}, []string{executions[0].ID, executions[1].ID, executions[2].ID})

	skipped, err := repo.SkipRemaining(t.Context(), "inst-1")
	require.NoError(t, err)
	assert.Len(t, skipped, 2, "completed execution is untouched")

	executions, err = repo.ListByInstance(t.Context(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
	assert.Equal(t, models.ExecutionSkipped, executions[1].Status)
	assert.Equal(t, models.ExecutionSkipped, executions[2].Status)

	// The other instance is untouched.
	others, err := repo.ListByInstance(t.Context(), "inst-2")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPending, others[0].Status)
}

func TestStepExecutionRepository_AssigneeQuery(t *testing.T) {
	p := newTestPersistence(t)
	repo := p.StepExecutionRepository()

	require.NoError(t, repo.CreateBatch(t.Context(), []*models.WorkflowStepExecution{
		{ID: "exec-1", InstanceID: "inst-1", StepOrder: 1, Status: models.ExecutionInProgress, AssigneeID: "alice"},
		{ID: "exec-2", InstanceID: "inst-2", StepOrder: 1, Status: models.ExecutionInProgress, AssigneeID: "bob"},
		{ID: "exec-3", InstanceID: "inst-3", StepOrder: 1, Status: models.ExecutionPending, AssigneeID: "alice"},
	}))

	tasks, err := repo.ListInProgressForAssignee(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "exec-1", tasks[0].ID)
}
