package handlers

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/matchops/fixturecast/app/dto"
	businessflow "github.com/matchops/fixturecast/business_flow"
)

// LedgerHandlerInterface defines the contract for ledger handlers
type LedgerHandlerInterface interface {
	List(c fiber.Ctx) error
	GetByFixture(c fiber.Ctx) error
	Reset(c fiber.Ctx) error
}

// LedgerHandler exposes the notification ledger to operators
type LedgerHandler struct {
	ledgerFlow businessflow.LedgerFlow
	validator  *validator.Validate
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerFlow businessflow.LedgerFlow) *LedgerHandler {
	return &LedgerHandler{
		ledgerFlow: ledgerFlow,
		validator:  validator.New(),
	}
}

// List returns a filtered page of ledger entries
func (h *LedgerHandler) List(c fiber.Ctx) error {
	var req dto.LedgerListRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorMessages(err))
	}

	ctx, cancel := createRequestContext(c, 30*time.Second)
	defer cancel()

	result, err := h.ledgerFlow.List(ctx, &req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Ledger entries retrieved", result)
}

// GetByFixture returns the active ledger entry for one fixture
func (h *LedgerHandler) GetByFixture(c fiber.Ctx) error {
	fixtureID, err := parseFixtureID(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid fixture id", "INVALID_FIXTURE_ID", nil)
	}

	ctx, cancel := createRequestContext(c, 30*time.Second)
	defer cancel()

	result, flowErr := h.ledgerFlow.GetByFixture(ctx, fixtureID)
	if flowErr != nil {
		return businessErrorResponse(c, flowErr)
	}
	return successResponse(c, fiber.StatusOK, "Ledger entry retrieved", result)
}

// Reset cancels and recreates the schedule state for one fixture
func (h *LedgerHandler) Reset(c fiber.Ctx) error {
	fixtureID, err := parseFixtureID(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid fixture id", "INVALID_FIXTURE_ID", nil)
	}

	ctx, cancel := createRequestContext(c, 60*time.Second)
	defer cancel()

	result, flowErr := h.ledgerFlow.Reset(ctx, fixtureID, clientMetadata(c))
	if flowErr != nil {
		return businessErrorResponse(c, flowErr)
	}
	return successResponse(c, fiber.StatusOK, "Ledger entry reset", result)
}

func parseFixtureID(c fiber.Ctx) (uint, error) {
	raw := c.Params("fixture_id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(id), nil
}
