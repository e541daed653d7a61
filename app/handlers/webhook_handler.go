package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/matchops/fixturecast/app/dto"
	businessflow "github.com/matchops/fixturecast/business_flow"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	ReceiveEvents(c fiber.Ctx) error
}

// WebhookHandler handles inbound delivery-event batches from the platform
type WebhookHandler struct {
	webhookFlow businessflow.WebhookFlow
	validator   *validator.Validate
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{
		webhookFlow: webhookFlow,
		validator:   validator.New(),
	}
}

// ReceiveEvents ingests one delivery-event batch. The batch is acknowledged
// with 200 even when every event ends up unlinked; the platform retries only
// on non-2xx.
func (h *WebhookHandler) ReceiveEvents(c fiber.Ctx) error {
	var req dto.WebhookBatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorMessages(err))
	}

	ctx, cancel := createRequestContext(c, 30*time.Second)
	defer cancel()

	result, err := h.webhookFlow.ProcessBatch(ctx, &req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}

	return successResponse(c, fiber.StatusOK, "Batch processed", result)
}
