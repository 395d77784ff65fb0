package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/notification"
	"github.com/approvio/approvio/pkg/persistence/file"
	"github.com/approvio/approvio/pkg/services"
	"github.com/approvio/approvio/pkg/web"
	"github.com/approvio/approvio/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.Template, *workflow.Engine) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())
	templateService := services.NewTemplate(persistence, nil)
	engine := workflow.NewEngine(persistence, templateService, notification.NewLogNotifier(logger), nil, logger)

	handlers := web.NewAPIHandlers(templateService, engine, validator.New(validator.WithRequiredStructEnabled()))
	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, templateService, engine
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func templateRequest() web.CreateTemplateRequest {
	return web.CreateTemplateRequest{
		Name:      "Document Sign-off",
		Trigger:   models.TriggerSubjectCreated,
		CreatedBy: "admin",
		Steps: []models.WorkflowStep{
			{Name: "Manager review", Kind: models.StepKindReview, AssigneeType: models.AssigneeUser, AssigneeID: "alice", Order: 1, Required: true},
			{Name: "Finance approval", Kind: models.StepKindApproval, AssigneeType: models.AssigneeUser, AssigneeID: "bob", Order: 2, Required: true},
		},
	}
}

func createTemplate(t *testing.T, app *fiber.App) *models.WorkflowTemplate {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/templates/", templateRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	template := decodeBody[*models.WorkflowTemplate](t, resp)
	require.NotEmpty(t, template.ID)

	return template
}

func startInstance(t *testing.T, app *fiber.App, templateID string) *models.WorkflowInstance {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/workflows/", web.StartWorkflowRequest{
		TemplateID:  templateID,
		SubjectID:   "doc-1",
		InitiatedBy: "carol",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[*models.WorkflowInstance](t, resp)
}

func TestAPIHandlers_CreateTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mutate         func(*web.CreateTemplateRequest)
		expectedStatus int
	}{
		{
			name:           "successful creation",
			mutate:         func(*web.CreateTemplateRequest) {},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "name too short",
			mutate:         func(r *web.CreateTemplateRequest) { r.Name = "ab" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "no steps",
			mutate:         func(r *web.CreateTemplateRequest) { r.Steps = nil },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown trigger",
			mutate:         func(r *web.CreateTemplateRequest) { r.Trigger = "subject.vanished" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate step order",
			mutate: func(r *web.CreateTemplateRequest) {
				r.Steps[1].Order = r.Steps[0].Order
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _, _ := setupTestApp(t)

			req := templateRequest()
			tt.mutate(&req)

			resp := doJSON(t, app, http.MethodPost, "/templates/", req)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestAPIHandlers_GetTemplate(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	template := createTemplate(t, app)

	resp := doJSON(t, app, http.MethodGet, "/templates/"+template.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fetched := decodeBody[*models.WorkflowTemplate](t, resp)
	assert.Equal(t, template.Name, fetched.Name)
	assert.True(t, fetched.Active)

	missing := doJSON(t, app, http.MethodGet, "/templates/absent", nil)
	defer func() { _ = missing.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAPIHandlers_SetTemplateActive(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	template := createTemplate(t, app)

	resp := doJSON(t, app, http.MethodPatch, "/templates/"+template.ID+"/active", web.SetTemplateActiveRequest{Active: false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[*models.WorkflowTemplate](t, resp)
	assert.False(t, updated.Active)

	// Starting from a deactivated template is an invalid-state conflict.
	start := doJSON(t, app, http.MethodPost, "/workflows/", web.StartWorkflowRequest{
		TemplateID:  template.ID,
		SubjectID:   "doc-1",
		InitiatedBy: "carol",
	})
	defer func() { _ = start.Body.Close() }()
	assert.Equal(t, http.StatusConflict, start.StatusCode)
}

func TestAPIHandlers_DeleteTemplate(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	template := createTemplate(t, app)

	startInstance(t, app, template.ID)

	// A template referenced by instances refuses deletion.
	resp := doJSON(t, app, http.MethodDelete, "/templates/"+template.ID, nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	unused := createTemplate(t, app)

	deleted := doJSON(t, app, http.MethodDelete, "/templates/"+unused.ID, nil)
	defer func() { _ = deleted.Body.Close() }()
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)
}

func TestAPIHandlers_StartAndGetInstance(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	template := createTemplate(t, app)
	instance := startInstance(t, app, template.ID)

	assert.Equal(t, models.InstanceInProgress, instance.Status)

	resp := doJSON(t, app, http.MethodGet, "/instances/"+instance.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detail := decodeBody[web.InstanceResponse](t, resp)
	require.NotNil(t, detail.Instance)
	assert.Equal(t, instance.ID, detail.Instance.ID)
	require.Len(t, detail.Executions, 2)
	assert.Equal(t, models.ExecutionInProgress, detail.Executions[0].Status)
}

func TestAPIHandlers_TriggerWorkflows(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	createTemplate(t, app)

	resp := doJSON(t, app, http.MethodPost, "/workflows/trigger", web.TriggerWorkflowsRequest{
		Trigger:     models.TriggerSubjectCreated,
		SubjectID:   "doc-7",
		InitiatedBy: "carol",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[struct {
		Instances []*models.WorkflowInstance `json:"instances"`
	}](t, resp)
	require.Len(t, body.Instances, 1)
	assert.Equal(t, "doc-7", body.Instances[0].SubjectID)

	// No template matches subject.expired.
	empty := doJSON(t, app, http.MethodPost, "/workflows/trigger", web.TriggerWorkflowsRequest{
		Trigger:     models.TriggerSubjectExpired,
		SubjectID:   "doc-8",
		InitiatedBy: "carol",
	})
	require.Equal(t, http.StatusCreated, empty.StatusCode)

	none := decodeBody[struct {
		Instances []*models.WorkflowInstance `json:"instances"`
	}](t, empty)
	assert.Empty(t, none.Instances)
}

func TestAPIHandlers_DecideStep(t *testing.T) {
	t.Parallel()

	app, _, engine := setupTestApp(t)
	template := createTemplate(t, app)
	instance := startInstance(t, app, template.ID)

	executions, err := engine.GetStepExecutions(t.Context(), instance.ID)
	require.NoError(t, err)

	comment := "checked"
	resp := doJSON(t, app, http.MethodPost, "/step-executions/"+executions[0].ID+"/decision", web.DecisionRequest{
		Actor:    "alice",
		Decision: models.DecisionApprove,
		Comments: &comment,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decided := decodeBody[*models.WorkflowStepExecution](t, resp)
	assert.Equal(t, models.ExecutionCompleted, decided.Status)

	// Re-deciding the same execution conflicts.
	again := doJSON(t, app, http.MethodPost, "/step-executions/"+executions[0].ID+"/decision", web.DecisionRequest{
		Actor:    "alice",
		Decision: models.DecisionApprove,
	})
	defer func() { _ = again.Body.Close() }()
	assert.Equal(t, http.StatusConflict, again.StatusCode)

	// Unknown decisions are validation errors.
	bad := doJSON(t, app, http.MethodPost, "/step-executions/"+executions[1].ID+"/decision", web.DecisionRequest{
		Actor:    "bob",
		Decision: "escalate",
	})
	defer func() { _ = bad.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestAPIHandlers_CancelInstance(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	template := createTemplate(t, app)
	instance := startInstance(t, app, template.ID)

	resp := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel", web.CancelInstanceRequest{Reason: "withdrawn"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled := decodeBody[*models.WorkflowInstance](t, resp)
	assert.Equal(t, models.InstanceCancelled, cancelled.Status)
	assert.Equal(t, "withdrawn", cancelled.CancelReason)

	// Cancelling again conflicts; the instance stays terminal.
	again := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel", web.CancelInstanceRequest{Reason: "twice"})
	defer func() { _ = again.Body.Close() }()
	assert.Equal(t, http.StatusConflict, again.StatusCode)
}

func TestAPIHandlers_SubjectAndAssigneeQueries(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)
	template := createTemplate(t, app)
	startInstance(t, app, template.ID)

	resp := doJSON(t, app, http.MethodGet, "/subjects/doc-1/instances", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	subjectBody := decodeBody[struct {
		Instances []*models.WorkflowInstance `json:"instances"`
	}](t, resp)
	require.Len(t, subjectBody.Instances, 1)
	assert.Equal(t, template.ID, subjectBody.Instances[0].TemplateID)

	tasks := doJSON(t, app, http.MethodGet, "/assignees/alice/tasks", nil)
	require.Equal(t, http.StatusOK, tasks.StatusCode)

	taskBody := decodeBody[struct {
		Tasks []workflow.PendingTask `json:"tasks"`
	}](t, tasks)
	require.Len(t, taskBody.Tasks, 1)
	assert.Equal(t, "Manager review", taskBody.Tasks[0].Step.Name)

	idle := doJSON(t, app, http.MethodGet, "/assignees/bob/tasks", nil)
	require.Equal(t, http.StatusOK, idle.StatusCode)

	idleBody := decodeBody[struct {
		Tasks []workflow.PendingTask `json:"tasks"`
	}](t, idle)
	assert.Empty(t, idleBody.Tasks)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
