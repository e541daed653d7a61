package businessflow

import (
	"context"
	"log"

	"github.com/matchops/fixturecast/app/dto"
	"github.com/matchops/fixturecast/app/scheduler"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
)

// LedgerFlow exposes read access to the ledger plus the manual reset escape
// hatch for operators
type LedgerFlow interface {
	List(ctx context.Context, req *dto.LedgerListRequest) (*dto.LedgerListResponse, error)
	GetByFixture(ctx context.Context, fixtureID uint) (*dto.LedgerEntryResponse, error)
	Reset(ctx context.Context, fixtureID uint, metadata *ClientMetadata) (*dto.LedgerResetResponse, error)
}

type ledgerFlowImpl struct {
	fixtureRepo repository.FixtureRepository
	ledgerRepo  repository.NotificationLedgerRepository
	client      scheduler.PlatformClient
	convergence *scheduler.ConvergenceScheduler
	logger      *log.Logger
}

func NewLedgerFlow(
	fixtureRepo repository.FixtureRepository,
	ledgerRepo repository.NotificationLedgerRepository,
	client scheduler.PlatformClient,
	convergence *scheduler.ConvergenceScheduler,
	logger *log.Logger,
) LedgerFlow {
	return &ledgerFlowImpl{
		fixtureRepo: fixtureRepo,
		ledgerRepo:  ledgerRepo,
		client:      client,
		convergence: convergence,
		logger:      logger,
	}
}

func (f *ledgerFlowImpl) List(ctx context.Context, req *dto.LedgerListRequest) (*dto.LedgerListResponse, error) {
	page, pageSize := normalizePagination(req.Page, req.PageSize)

	filter := models.NotificationLedgerFilter{
		FixtureID:  req.FixtureID,
		SendAfter:  req.SendAfter,
		SendBefore: req.SendBefore,
	}
	if req.Status != nil {
		status := models.LedgerStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessErrorf("LEDGER_INVALID_STATUS", "invalid ledger status %q", nil, *req.Status)
		}
		filter.Status = &status
	}

	total, err := f.ledgerRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LEDGER_COUNT_FAILED", "failed to count ledger entries", err)
	}
	rows, err := f.ledgerRepo.ByFilter(ctx, filter, "send_at DESC, id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LIST_FAILED", "failed to list ledger entries", err)
	}

	items := make([]dto.LedgerEntryResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToLedgerEntryDTO(row))
	}
	return &dto.LedgerListResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (f *ledgerFlowImpl) GetByFixture(ctx context.Context, fixtureID uint) (*dto.LedgerEntryResponse, error) {
	entry, err := f.ledgerRepo.ActiveByFixtureID(ctx, fixtureID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "failed to look up ledger entry", err)
	}
	if entry == nil {
		return nil, NewBusinessError("LEDGER_NOT_FOUND", "no active ledger entry for fixture", ErrLedgerEntryNotFound)
	}
	response := ToLedgerEntryDTO(entry)
	return &response, nil
}

// Reset cancels the remote schedule (best effort), deletes the ledger row and
// immediately re-converges the fixture so the operator ends with a clean state
func (f *ledgerFlowImpl) Reset(ctx context.Context, fixtureID uint, metadata *ClientMetadata) (*dto.LedgerResetResponse, error) {
	fixture, err := f.fixtureRepo.ByID(ctx, fixtureID)
	if err != nil {
		return nil, NewBusinessError("FIXTURE_LOOKUP_FAILED", "failed to look up fixture", err)
	}
	if fixture == nil {
		return nil, NewBusinessError("FIXTURE_NOT_FOUND", "fixture not found", ErrFixtureNotFound)
	}

	entry, err := f.ledgerRepo.ActiveByFixtureID(ctx, fixtureID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "failed to look up ledger entry", err)
	}
	if entry == nil {
		return nil, NewBusinessError("LEDGER_NOT_FOUND", "no active ledger entry for fixture", ErrLedgerEntryNotFound)
	}

	response := &dto.LedgerResetResponse{FixtureID: fixtureID, DeletedLedgerID: entry.ID}

	if entry.HasRealRemoteID() {
		if delErr := f.client.DeleteSchedule(ctx, entry.RemoteScheduleID); delErr != nil {
			// The reconciler sweeps whatever survives the failed delete
			f.logger.Printf("ledger reset: failed to cancel remote schedule %s: %v", entry.RemoteScheduleID, delErr)
		} else {
			response.RemoteCancelled = true
		}
	}

	if err := f.ledgerRepo.DeleteByID(ctx, entry.ID); err != nil {
		return nil, NewBusinessError("LEDGER_DELETE_FAILED", "failed to delete ledger entry", err)
	}
	f.logger.Printf("ledger reset: fixture=%d ledger=%d by=%s", fixtureID, entry.ID, metadata.IPAddress)

	outcome, err := f.convergence.ConvergeFixtureByID(ctx, fixtureID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_RECONVERGE_FAILED", "reset succeeded but re-convergence failed", err)
	}
	if outcome != nil {
		response.Outcome = outcome.Outcome
	}
	return response, nil
}
