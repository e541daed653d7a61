package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/matchops/fixturecast/app/dto"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var webhookResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixturecast_webhook_resolutions_total",
		Help: "Delivery events partitioned by how they were correlated",
	},
	[]string{"resolution"},
)

// WebhookFlow correlates inbound delivery-event batches against the ledger
type WebhookFlow interface {
	ProcessBatch(ctx context.Context, req *dto.WebhookBatchRequest, metadata *ClientMetadata) (*dto.WebhookBatchResponse, error)
}

type webhookFlowImpl struct {
	ledgerRepo       repository.NotificationLedgerRepository
	confirmationRepo repository.DeliveryConfirmationRepository
	outcomeRepo      repository.RunOutcomeRepository
	db               *gorm.DB
	window           time.Duration
	logger           *log.Logger
}

func NewWebhookFlow(
	ledgerRepo repository.NotificationLedgerRepository,
	confirmationRepo repository.DeliveryConfirmationRepository,
	outcomeRepo repository.RunOutcomeRepository,
	db *gorm.DB,
	correlationWindow time.Duration,
	logger *log.Logger,
) WebhookFlow {
	return &webhookFlowImpl{
		ledgerRepo:       ledgerRepo,
		confirmationRepo: confirmationRepo,
		outcomeRepo:      outcomeRepo,
		db:               db,
		window:           correlationWindow,
		logger:           logger,
	}
}

// resolveEvent links one delivery event to a ledger entry. Resolution order is
// strict: an echoed fixture id wins over correlation ids, which win over the
// nearest send instant inside the window. Pure.
func resolveEvent(event dto.WebhookEventRequest, candidates []*models.NotificationLedger, window time.Duration) (*models.NotificationLedger, string) {
	// Cancelled entries never absorb an event on any branch
	live := make([]*models.NotificationLedger, 0, len(candidates))
	for _, c := range candidates {
		if c.Status != models.LedgerStatusCancelled {
			live = append(live, c)
		}
	}

	if event.FixtureID != 0 {
		for _, c := range live {
			if c.FixtureID == event.FixtureID {
				return c, models.ResolutionFixtureID
			}
		}
	}

	if event.DispatchID != "" {
		for _, c := range live {
			if c.RemoteDispatchID != nil && *c.RemoteDispatchID == event.DispatchID {
				return c, models.ResolutionCorrelationID
			}
		}
	}
	if event.SendID != "" {
		for _, c := range live {
			if c.RemoteSendID != nil && *c.RemoteSendID == event.SendID {
				return c, models.ResolutionCorrelationID
			}
		}
	}

	// Nearest-time fallback can misattribute when two schedules fire close
	// together; the resolution kind is persisted so those links are auditable
	var best *models.NotificationLedger
	var bestDelta time.Duration
	for _, c := range live {
		delta := utils.AbsDuration(c.SendAt.Sub(event.EventAt))
		if delta > window {
			continue
		}
		if best == nil || delta < bestDelta {
			best = c
			bestDelta = delta
		}
	}
	if best != nil {
		return best, models.ResolutionNearestTime
	}
	return nil, models.ResolutionUnlinked
}

// ProcessBatch correlates a whole batch with a single candidate query and a
// single transaction, regardless of batch size
func (f *webhookFlowImpl) ProcessBatch(ctx context.Context, req *dto.WebhookBatchRequest, metadata *ClientMetadata) (*dto.WebhookBatchResponse, error) {
	if req == nil || len(req.Events) == 0 {
		return nil, NewBusinessError("WEBHOOK_BATCH_EMPTY", "webhook batch contains no events", ErrWebhookBatchEmpty)
	}

	var dispatchIDs, sendIDs []string
	minAt, maxAt := req.Events[0].EventAt, req.Events[0].EventAt
	for _, event := range req.Events {
		if event.DispatchID != "" {
			dispatchIDs = append(dispatchIDs, event.DispatchID)
		}
		if event.SendID != "" {
			sendIDs = append(sendIDs, event.SendID)
		}
		if event.EventAt.Before(minAt) {
			minAt = event.EventAt
		}
		if event.EventAt.After(maxAt) {
			maxAt = event.EventAt
		}
	}

	candidates, err := f.ledgerRepo.CandidatesForCorrelation(ctx, dispatchIDs, sendIDs,
		minAt.Add(-f.window), maxAt.Add(f.window))
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_CANDIDATES_FAILED", "failed to load correlation candidates", err)
	}

	response := &dto.WebhookBatchResponse{
		Received:     len(req.Events),
		ByResolution: make(map[string]int),
	}
	confirmations := make([]*models.DeliveryConfirmation, 0, len(req.Events))
	var updates []repository.LedgerSentUpdate

	for _, event := range req.Events {
		entry, resolution := resolveEvent(event, candidates, f.window)
		response.ByResolution[resolution]++
		webhookResolutionsTotal.WithLabelValues(resolution).Inc()

		confirmation := &models.DeliveryConfirmation{
			EventType:  event.EventType,
			EventAt:    event.EventAt,
			Resolution: resolution,
		}
		if event.DispatchID != "" {
			confirmation.DispatchID = utils.ToPtr(event.DispatchID)
		}
		if event.SendID != "" {
			confirmation.SendID = utils.ToPtr(event.SendID)
		}
		if raw, jsonErr := json.Marshal(event); jsonErr == nil {
			confirmation.RawPayload = raw
		}

		if entry == nil {
			response.Unlinked++
			confirmations = append(confirmations, confirmation)
			continue
		}

		response.Linked++
		confirmation.LedgerID = utils.ToPtr(entry.ID)
		confirmations = append(confirmations, confirmation)

		if entry.Status == models.LedgerStatusPending {
			update := repository.LedgerSentUpdate{LedgerID: entry.ID}
			if event.DispatchID != "" {
				update.DispatchID = utils.ToPtr(event.DispatchID)
			}
			if event.SendID != "" {
				update.SendID = utils.ToPtr(event.SendID)
			}
			updates = append(updates, update)
		}
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.confirmationRepo.SaveBatch(txCtx, confirmations); err != nil {
			return fmt.Errorf("failed to save confirmations: %w", err)
		}
		if err := f.ledgerRepo.MarkSentIfPending(txCtx, updates); err != nil {
			return fmt.Errorf("failed to mark entries sent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_PERSIST_FAILED", "failed to persist webhook batch", err)
	}

	outcome := &models.RunOutcome{
		RunName: utils.RunNameWebhook,
		Outcome: models.OutcomeUpdated,
		Reason:  models.ReasonMarkedSent,
	}
	if detail, jsonErr := json.Marshal(map[string]any{
		"received":      response.Received,
		"linked":        response.Linked,
		"unlinked":      response.Unlinked,
		"by_resolution": response.ByResolution,
	}); jsonErr == nil {
		outcome.Detail = detail
	}
	if saveErr := f.outcomeRepo.Save(ctx, outcome); saveErr != nil {
		f.logger.Printf("webhook: failed to record batch outcome: %v", saveErr)
	}

	f.logger.Printf("webhook: batch processed received=%d linked=%d unlinked=%d",
		response.Received, response.Linked, response.Unlinked)
	return response, nil
}
