// Package web provides the REST API for workflow templates, instances, and
// step decisions.
package web

import (
	"net/http"
	"time"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/services"
	"github.com/approvio/approvio/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	templateService *services.Template
	engine          *workflow.Engine
	validator       *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	engine *workflow.Engine,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService: templateService,
		engine:          engine,
		validator:       validator,
	}
}

// RegisterRoutes mounts every API route on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	templates := app.Group("/templates")
	templates.Post("/", h.CreateTemplate)
	templates.Get("/", h.ListTemplates)
	templates.Get("/:id", h.GetTemplate)
	templates.Patch("/:id/active", h.SetTemplateActive)
	templates.Delete("/:id", h.DeleteTemplate)

	workflows := app.Group("/workflows")
	workflows.Post("/", h.StartWorkflow)
	workflows.Post("/trigger", h.TriggerWorkflows)

	instances := app.Group("/instances")
	instances.Get("/:id", h.GetInstance)
	instances.Post("/:id/cancel", h.CancelInstance)

	app.Post("/step-executions/:id/decision", h.DecideStep)
	app.Get("/subjects/:subjectId/instances", h.GetSubjectInstances)
	app.Get("/assignees/:assigneeId/tasks", h.GetAssigneeTasks)
	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template := &models.WorkflowTemplate{
		Name:            req.Name,
		Description:     req.Description,
		Trigger:         req.Trigger,
		SubjectCategory: req.SubjectCategory,
		SubjectType:     req.SubjectType,
		Steps:           req.Steps,
		CreatedBy:       req.CreatedBy,
	}

	created, err := h.templateService.Create(c.Context(), template)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) SetTemplateActive(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req SetTemplateActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	template, err := h.templateService.SetActive(c.Context(), id, req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	if err := h.templateService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	var req StartWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), req.TemplateID, req.SubjectID, req.InitiatedBy, req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) TriggerWorkflows(c fiber.Ctx) error {
	var req TriggerWorkflowsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instances, err := h.engine.StartForTrigger(c.Context(),
		req.Trigger, req.SubjectID, req.SubjectCategory, req.SubjectType, req.InitiatedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.engine.GetInstance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	executions, err := h.engine.GetStepExecutions(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(InstanceResponse{Instance: instance, Executions: executions})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req CancelInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.Cancel(c.Context(), id, req.Reason); err != nil {
		return handleServiceError(c, err)
	}

	instance, err := h.engine.GetInstance(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) DecideStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Step execution ID is required")
	}

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.engine.CompleteStep(c.Context(), id, req.Actor, req.Decision, req.Comments)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetSubjectInstances(c fiber.Ctx) error {
	subjectID := c.Params("subjectId")
	if subjectID == "" {
		return badRequest(c, "Subject ID is required")
	}

	instances, err := h.engine.GetInstancesForSubject(c.Context(), subjectID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) GetAssigneeTasks(c fiber.Ctx) error {
	assigneeID := c.Params("assigneeId")
	if assigneeID == "" {
		return badRequest(c, "Assignee ID is required")
	}

	tasks, err := h.engine.GetPendingTasks(c.Context(), assigneeID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approvio API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Approvio API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
