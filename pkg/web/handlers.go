// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/services"
)

type APIHandlers struct {
	workflowService   *services.Workflow
	draftService      *services.Draft
	transitionService *services.Transition
	guardService      *services.UsageGuard
	validator         *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	draftService *services.Draft,
	transitionService *services.Transition,
	guardService *services.UsageGuard,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:   workflowService,
		draftService:      draftService,
		transitionService: transitionService,
		guardService:      guardService,
		validator:         validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Quarry API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Quarry API is healthy"
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

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.Name, req.Description)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) CloneWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CloneWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	cloned, err := h.workflowService.Clone(c.Context(), id, req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(cloned)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StartDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	draft, err := h.draftService.StartDraft(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) GetDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	draft, err := h.draftService.FetchDraft(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(draft)
}

func (h *APIHandlers) PublishDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	result, err := h.draftService.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) DiscardDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	err := h.draftService.Discard(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req AddStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.draftService.AddStep(c.Context(), id, &models.WorkflowStep{
		StatusID: req.StatusID,
		Position: req.Position,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.draftService.UpdateStep(c.Context(), id, &models.WorkflowStep{
		ID:       req.ID,
		StatusID: req.StatusID,
		Position: req.Position,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) RemoveStep(c fiber.Ctx) error {
	id := c.Params("id")
	statusID := c.Params("statusId")

	if id == "" || statusID == "" {
		return badRequest(c, "Workflow ID and status ID are required")
	}

	updated, err := h.draftService.RemoveStep(c.Context(), id, statusID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) StepRemovalCheck(c fiber.Ctx) error {
	id := c.Params("id")
	statusID := c.Params("statusId")

	if id == "" || statusID == "" {
		return badRequest(c, "Workflow ID and status ID are required")
	}

	check, err := h.guardService.CanRemoveStep(c.Context(), id, statusID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(check)
}

func (h *APIHandlers) AddTransition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req AddTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.draftService.AddTransition(c.Context(), id, &models.WorkflowTransition{
		Name:         req.Name,
		FromStatusID: req.FromStatusID,
		ToStatusID:   req.ToStatusID,
		RuleRef:      req.RuleRef,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) UpdateTransition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.draftService.UpdateTransition(c.Context(), id, &models.WorkflowTransition{
		ID:           req.ID,
		Name:         req.Name,
		FromStatusID: req.FromStatusID,
		ToStatusID:   req.ToStatusID,
		RuleRef:      req.RuleRef,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) RemoveTransition(c fiber.Ctx) error {
	id := c.Params("id")
	transitionID := c.Params("transitionId")

	if id == "" || transitionID == "" {
		return badRequest(c, "Workflow ID and transition ID are required")
	}

	updated, err := h.draftService.RemoveTransition(c.Context(), id, transitionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ExecuteTransition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Issue ID is required")
	}

	var req ExecuteTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.transitionService.Execute(c.Context(), id, req.ToStatusID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !result.Success {
		// A rejected move is a well-formed answer, not a server fault.
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetAllowedTargets(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Issue ID is required")
	}

	targets, err := h.transitionService.AllowedTargets(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AllowedTargetsResponse{
		IssueID: id,
		Targets: targets,
	})
}
