package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/matchops/fixturecast/app/dto"
	businessflow "github.com/matchops/fixturecast/business_flow"
)

// RunHandlerInterface defines the contract for run handlers
type RunHandlerInterface interface {
	Trigger(c fiber.Ctx) error
	ListOutcomes(c fiber.Ctx) error
	SendAdHoc(c fiber.Ctx) error
	UpsertTranslation(c fiber.Ctx) error
}

// RunHandler exposes manual run triggers and the outcome log
type RunHandler struct {
	runFlow   businessflow.RunFlow
	validator *validator.Validate
}

// NewRunHandler creates a new run handler
func NewRunHandler(runFlow businessflow.RunFlow) *RunHandler {
	return &RunHandler{
		runFlow:   runFlow,
		validator: validator.New(),
	}
}

// Trigger executes one scheduler unit outside its cron cadence. Runs can take
// a while against a slow platform, so the timeout is generous.
func (h *RunHandler) Trigger(c fiber.Ctx) error {
	runName := c.Params("run_name")
	if runName == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Run name is required", "MISSING_RUN_NAME", nil)
	}

	ctx, cancel := createRequestContext(c, 5*time.Minute)
	defer cancel()

	result, err := h.runFlow.Trigger(ctx, runName, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Run completed", result)
}

// ListOutcomes returns a filtered page of the outcome log
func (h *RunHandler) ListOutcomes(c fiber.Ctx) error {
	var req dto.OutcomeListRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorMessages(err))
	}

	ctx, cancel := createRequestContext(c, 30*time.Second)
	defer cancel()

	result, err := h.runFlow.ListOutcomes(ctx, &req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Outcomes retrieved", result)
}

// SendAdHoc delivers a message to explicit recipients immediately
func (h *RunHandler) SendAdHoc(c fiber.Ctx) error {
	var req dto.AdHocSendRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorMessages(err))
	}

	ctx, cancel := createRequestContext(c, 60*time.Second)
	defer cancel()

	result, err := h.runFlow.SendAdHoc(ctx, &req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Message dispatched", result)
}

// UpsertTranslation stores a localized participant name
func (h *RunHandler) UpsertTranslation(c fiber.Ctx) error {
	var req dto.TranslationUpsertRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorMessages(err))
	}

	ctx, cancel := createRequestContext(c, 30*time.Second)
	defer cancel()

	if err := h.runFlow.UpsertTranslation(ctx, &req); err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Translation saved", nil)
}
