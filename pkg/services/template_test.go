package services

import (
	"testing"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTemplateService(t *testing.T) *Template {
	t.Helper()

	return NewTemplate(file.NewPersistence(t.TempDir()), nil)
}

func validTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:      "Invoice Approval",
		Trigger:   models.TriggerSubjectCreated,
		CreatedBy: "admin",
		Steps: []models.WorkflowStep{
			{Name: "Manager review", Kind: models.StepKindReview, AssigneeType: models.AssigneeUser, AssigneeID: "manager", Order: 1, Required: true},
			{Name: "Finance sign-off", Kind: models.StepKindApproval, AssigneeType: models.AssigneeRole, AssigneeID: "finance", Order: 2, Required: true},
		},
	}
}

func TestTemplate_Create(t *testing.T) {
	service := newTestTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active, "new templates start active")
	assert.False(t, created.CreatedAt.IsZero())
	assert.NotEmpty(t, created.Steps[0].ID, "step ids are filled in")

	fetched, err := service.GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Len(t, fetched.Steps, 2)
}

func TestTemplate_CreateValidation(t *testing.T) {
	service := newTestTemplateService(t)

	tests := []struct {
		name    string
		mutate  func(*models.WorkflowTemplate)
		wantErr error
	}{
		{
			name:    "empty steps",
			mutate:  func(tpl *models.WorkflowTemplate) { tpl.Steps = nil },
			wantErr: ErrInvalidRequest,
		},
		{
			name: "duplicate order",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Steps[1].Order = tpl.Steps[0].Order
			},
			wantErr: ErrDuplicateStepOrder,
		},
		{
			name: "decreasing order",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Steps[0].Order = 5
				tpl.Steps[1].Order = 2
			},
			wantErr: ErrNonIncreasingOrder,
		},
		{
			name: "missing assignee",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Steps[0].AssigneeID = ""
			},
			wantErr: ErrUnresolvableAssignee,
		},
		{
			name: "unknown trigger",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Trigger = "subject.vanished"
			},
			wantErr: ErrInvalidTrigger,
		},
		{
			name:    "short name",
			mutate:  func(tpl *models.WorkflowTemplate) { tpl.Name = "ab" },
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template := validTemplate()
			tt.mutate(template)

			_, err := service.Create(t.Context(), template)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestTemplate_SystemStepNeedsNoAssignee(t *testing.T) {
	service := newTestTemplateService(t)

	template := validTemplate()
	template.Steps[0].AssigneeType = models.AssigneeSystem
	template.Steps[0].AssigneeID = ""
	template.Steps[0].AutoApprove = true

	_, err := service.Create(t.Context(), template)
	require.NoError(t, err)
}

func TestTemplate_FindForTrigger(t *testing.T) {
	service := newTestTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	matching, err := service.FindForTrigger(t.Context(), models.TriggerSubjectCreated, "", "")
	require.NoError(t, err)
	require.Len(t, matching, 1)
	assert.Equal(t, created.ID, matching[0].ID)

	none, err := service.FindForTrigger(t.Context(), models.TriggerSubjectExpired, "", "")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = service.FindForTrigger(t.Context(), "bogus", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestTemplate_SetActive(t *testing.T) {
	service := newTestTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	deactivated, err := service.SetActive(t.Context(), created.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	matching, err := service.FindForTrigger(t.Context(), models.TriggerSubjectCreated, "", "")
	require.NoError(t, err)
	assert.Empty(t, matching, "deactivated templates stop matching triggers")
}

func TestTemplate_GetMissing(t *testing.T) {
	service := newTestTemplateService(t)

	_, err := service.GetByID(t.Context(), "absent")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, persistence.IsTemplateNotFound(err))
}
