package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/matchops/fixturecast/app/dto"
	"github.com/matchops/fixturecast/app/scheduler"
	"github.com/matchops/fixturecast/app/services"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
)

// RunFlow exposes manual run triggers, the outcome log and operational
// one-offs to the admin API
type RunFlow interface {
	Trigger(ctx context.Context, runName string, metadata *ClientMetadata) (*dto.RunSummaryResponse, error)
	ListOutcomes(ctx context.Context, req *dto.OutcomeListRequest) (*dto.OutcomeListResponse, error)
	SendAdHoc(ctx context.Context, req *dto.AdHocSendRequest, metadata *ClientMetadata) (*dto.AdHocSendResponse, error)
	UpsertTranslation(ctx context.Context, req *dto.TranslationUpsertRequest) error
}

type runFlowImpl struct {
	convergence  *scheduler.ConvergenceScheduler
	reconciler   *scheduler.Reconciler
	verifier     *scheduler.Verifier
	gapDetector  *scheduler.GapDetector
	outcomeRepo  repository.RunOutcomeRepository
	client       scheduler.PlatformClient
	localization services.LocalizationService
	sourceTag    string
	logger       *log.Logger
}

func NewRunFlow(
	convergence *scheduler.ConvergenceScheduler,
	reconciler *scheduler.Reconciler,
	verifier *scheduler.Verifier,
	gapDetector *scheduler.GapDetector,
	outcomeRepo repository.RunOutcomeRepository,
	client scheduler.PlatformClient,
	localization services.LocalizationService,
	sourceTag string,
	logger *log.Logger,
) RunFlow {
	return &runFlowImpl{
		convergence:  convergence,
		reconciler:   reconciler,
		verifier:     verifier,
		gapDetector:  gapDetector,
		outcomeRepo:  outcomeRepo,
		client:       client,
		localization: localization,
		sourceTag:    sourceTag,
		logger:       logger,
	}
}

// Trigger executes one unit outside its cron cadence. The unit's own lock
// still applies, so a trigger racing the cron degrades to a skip.
func (f *runFlowImpl) Trigger(ctx context.Context, runName string, metadata *ClientMetadata) (*dto.RunSummaryResponse, error) {
	var summary *scheduler.RunSummary
	var err error

	switch runName {
	case utils.RunNameConvergence:
		summary, err = f.convergence.RunOnce(ctx)
	case utils.RunNameReconciler:
		summary, err = f.reconciler.RunOnce(ctx)
	case utils.RunNameVerifier:
		summary, err = f.verifier.RunOnce(ctx)
	case utils.RunNameGapDetector:
		summary, err = f.gapDetector.RunOnce(ctx)
	default:
		return nil, NewBusinessErrorf("RUN_UNKNOWN", "unknown run name %q", ErrUnknownRunName, runName)
	}
	if err != nil {
		return nil, NewBusinessErrorf("RUN_FAILED", "%s run failed", err, runName)
	}

	f.logger.Printf("run trigger: %s by=%s created=%d updated=%d errors=%d",
		runName, metadata.IPAddress, summary.Created, summary.Updated, summary.Errors)
	response := ToRunSummaryDTO(summary)
	return &response, nil
}

func (f *runFlowImpl) ListOutcomes(ctx context.Context, req *dto.OutcomeListRequest) (*dto.OutcomeListResponse, error) {
	page, pageSize := normalizePagination(req.Page, req.PageSize)

	filter := models.RunOutcomeFilter{
		RunName:       req.RunName,
		FixtureID:     req.FixtureID,
		Outcome:       req.Outcome,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
	}
	rows, err := f.outcomeRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("OUTCOME_LIST_FAILED", "failed to list run outcomes", err)
	}

	items := make([]dto.OutcomeResponse, 0, len(rows))
	for _, row := range rows {
		item := dto.OutcomeResponse{
			ID:        row.ID,
			RunName:   row.RunName,
			FixtureID: row.FixtureID,
			Outcome:   row.Outcome,
			Reason:    row.Reason,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Detail) > 0 {
			var detail any
			if jsonErr := json.Unmarshal(row.Detail, &detail); jsonErr == nil {
				item.Detail = detail
			}
		}
		items = append(items, item)
	}
	return &dto.OutcomeListResponse{Items: items, Page: page, PageSize: pageSize}, nil
}

// SendAdHoc bypasses the schedule machinery entirely; nothing is written to
// the ledger because there is no future state to converge
func (f *runFlowImpl) SendAdHoc(ctx context.Context, req *dto.AdHocSendRequest, metadata *ClientMetadata) (*dto.AdHocSendResponse, error) {
	if len(req.RecipientIDs) == 0 {
		return nil, NewBusinessError("SEND_NO_RECIPIENTS", "at least one recipient is required", ErrRecipientsRequired)
	}

	payload := scheduler.SchedulePayload{
		SourceTag: f.sourceTag,
		Title:     req.Title,
		Body:      req.Body,
	}
	dispatchID, err := f.client.SendToRecipients(ctx, req.RecipientIDs, payload)
	if err != nil {
		return nil, NewBusinessError("SEND_FAILED", "failed to send to recipients", err)
	}

	f.logger.Printf("ad hoc send: recipients=%d dispatch=%s by=%s", len(req.RecipientIDs), dispatchID, metadata.IPAddress)
	return &dto.AdHocSendResponse{DispatchID: dispatchID, Recipients: len(req.RecipientIDs)}, nil
}

func (f *runFlowImpl) UpsertTranslation(ctx context.Context, req *dto.TranslationUpsertRequest) error {
	provenance := req.Provenance
	if provenance == "" {
		provenance = "manual"
	}
	if err := f.localization.Persist(ctx, req.SourceName, req.LocalizedText, provenance); err != nil {
		return NewBusinessError("TRANSLATION_SAVE_FAILED", "failed to save translation", err)
	}
	return nil
}
