package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/matchops/fixturecast/app/services"
	"github.com/matchops/fixturecast/config"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
)

// convergenceAction is the decision for one fixture in one convergence pass
type convergenceAction int

const (
	actionSkipWindowMissed convergenceAction = iota
	actionSkipSignatureMatch
	actionSkipUpdateBuffer
	actionCreate
	actionRecreateLegacy
	actionUpdate
)

// decideConvergence picks the action for a fixture given its active ledger
// entry and the freshly computed signature. Pure so every branch is testable
// without a database.
func decideConvergence(now, target time.Time, entry *models.NotificationLedger, signature string, updateBuffer time.Duration) convergenceAction {
	if !target.After(now) {
		return actionSkipWindowMissed
	}
	if entry == nil {
		return actionCreate
	}
	if models.IsLegacyRemoteID(entry.RemoteScheduleID) {
		return actionRecreateLegacy
	}
	if entry.Signature == signature {
		return actionSkipSignatureMatch
	}
	// Too close to the existing or new send instant; touching the schedule now
	// risks a double or dropped send. Leave it for the webhook to confirm.
	buffer := now.Add(updateBuffer)
	if entry.SendAt.Before(buffer) || target.Before(buffer) {
		return actionSkipUpdateBuffer
	}
	return actionUpdate
}

// ConvergenceScheduler drives local fixture state toward the remote platform:
// one pass computes the desired schedule per eligible fixture and issues the
// minimal create/update to realize it
type ConvergenceScheduler struct {
	fixtureRepo  repository.FixtureRepository
	ledgerRepo   repository.NotificationLedgerRepository
	outcomeRepo  repository.RunOutcomeRepository
	lockRepo     repository.ScheduleLockRepository
	audience     services.AudienceService
	localization services.LocalizationService
	client       PlatformClient
	cfg          config.SchedulerConfig
	sourceTag    string
	logger       *log.Logger
}

func NewConvergenceScheduler(
	fixtureRepo repository.FixtureRepository,
	ledgerRepo repository.NotificationLedgerRepository,
	outcomeRepo repository.RunOutcomeRepository,
	lockRepo repository.ScheduleLockRepository,
	audience services.AudienceService,
	localization services.LocalizationService,
	client PlatformClient,
	cfg config.SchedulerConfig,
	sourceTag string,
	logger *log.Logger,
) *ConvergenceScheduler {
	return &ConvergenceScheduler{
		fixtureRepo:  fixtureRepo,
		ledgerRepo:   ledgerRepo,
		outcomeRepo:  outcomeRepo,
		lockRepo:     lockRepo,
		audience:     audience,
		localization: localization,
		client:       client,
		cfg:          cfg,
		sourceTag:    sourceTag,
		logger:       logger,
	}
}

// RunOnce executes one full convergence pass. Lock contention is a normal
// outcome, not an error; any store error while acquiring the lock aborts the
// run (fail closed).
func (s *ConvergenceScheduler) RunOnce(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunName: utils.RunNameConvergence, StartedAt: utils.UTCNow()}
	defer func() { summary.FinishedAt = utils.UTCNow() }()

	holder := uuid.NewString()
	acquired, err := s.lockRepo.TryAcquire(ctx, utils.RunNameConvergence, holder, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire convergence lock: %w", err)
	}
	if !acquired {
		lockAcquisitionsTotal.WithLabelValues(utils.RunNameConvergence, "contended").Inc()
		s.logger.Printf("convergence: lock held by another run, skipping")
		summary.Skipped++
		return summary, nil
	}
	lockAcquisitionsTotal.WithLabelValues(utils.RunNameConvergence, "acquired").Inc()
	summary.LockAcquired = true
	defer func() {
		if relErr := s.lockRepo.Release(ctx, utils.RunNameConvergence, holder); relErr != nil {
			// The TTL takeover covers a failed release
			s.logger.Printf("convergence: failed to release lock: %v", relErr)
		}
	}()

	attrs, err := s.audience.NotableAttributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notable set: %w", err)
	}
	aliases, err := s.audience.Aliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}

	now := utils.UTCNow()
	fixtures, err := s.fixtureRepo.ListUpcoming(ctx, now, now.Add(s.cfg.Lookahead))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming fixtures: %w", err)
	}

	for _, fixture := range fixtures {
		outcome := s.convergeFixture(ctx, fixture, attrs, aliases)
		if outcome == nil {
			continue
		}
		summary.tally(outcome.Outcome)
		runOutcomesTotal.WithLabelValues(utils.RunNameConvergence, outcome.Outcome).Inc()
		if saveErr := s.outcomeRepo.Save(ctx, outcome); saveErr != nil {
			s.logger.Printf("convergence: failed to record outcome for fixture %d: %v", fixture.ID, saveErr)
		}
	}

	s.logger.Printf("convergence: pass complete fixtures=%d created=%d updated=%d skipped=%d errors=%d",
		len(fixtures), summary.Created, summary.Updated, summary.Skipped, summary.Errors)
	return summary, nil
}

// ConvergeFixtureByID converges one fixture outside the cron cadence, used by
// the manual trigger endpoint. It does not take the run lock; the per-fixture
// reservation still protects the create path.
func (s *ConvergenceScheduler) ConvergeFixtureByID(ctx context.Context, fixtureID uint) (*models.RunOutcome, error) {
	fixture, err := s.fixtureRepo.ByID(ctx, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture %d: %w", fixtureID, err)
	}
	if fixture == nil {
		return nil, fmt.Errorf("fixture %d not found", fixtureID)
	}

	attrs, err := s.audience.NotableAttributes(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := s.audience.Aliases(ctx)
	if err != nil {
		return nil, err
	}

	outcome := s.convergeFixture(ctx, fixture, attrs, aliases)
	if outcome == nil {
		return nil, nil
	}
	runOutcomesTotal.WithLabelValues(utils.RunNameConvergence, outcome.Outcome).Inc()
	if saveErr := s.outcomeRepo.Save(ctx, outcome); saveErr != nil {
		s.logger.Printf("convergence: failed to record outcome for fixture %d: %v", fixture.ID, saveErr)
	}
	return outcome, nil
}

// convergeFixture handles one fixture and returns its outcome record, or nil
// when the fixture has no notable participant and is out of scope entirely
func (s *ConvergenceScheduler) convergeFixture(ctx context.Context, fixture *models.Fixture, attrs map[string]string, aliases []*models.ParticipantAlias) *models.RunOutcome {
	home := models.CanonicalizeName(fixture.HomeTeam, aliases)
	away := models.CanonicalizeName(fixture.AwayTeam, aliases)

	var audienceKeys []string
	for _, name := range []string{home, away} {
		if attr, ok := attrs[name]; ok {
			audienceKeys = append(audienceKeys, attr)
		}
	}
	if len(audienceKeys) == 0 {
		return nil
	}
	audienceKeys = dedupeStrings(audienceKeys)

	now := utils.UTCNow()
	target := fixture.KickoffAt.Add(-s.cfg.LeadTime)

	entry, err := s.ledgerRepo.ActiveByFixtureID(ctx, fixture.ID)
	if err != nil {
		return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, err)
	}

	if !target.After(now) {
		return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
			models.OutcomeSkipped, models.ReasonWindowMissed,
			map[string]any{"target_send_at": target, "kickoff_at": fixture.KickoffAt})
	}

	homeText, homeOK, err := s.localization.Resolve(ctx, home)
	if err != nil {
		return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, err)
	}
	awayText, awayOK, err := s.localization.Resolve(ctx, away)
	if err != nil {
		return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, err)
	}
	if !homeOK || !awayOK {
		return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
			models.OutcomeSkipped, models.ReasonContentUnavailable,
			map[string]any{"home": home, "away": away, "home_resolved": homeOK, "away_resolved": awayOK})
	}

	signature := ComputeSignature(target, audienceKeys, homeText, awayText)
	payload := SchedulePayload{
		SourceTag: s.sourceTag,
		FixtureID: fixture.ID,
		Signature: signature,
		Title:     fmt.Sprintf("%s vs %s", homeText, awayText),
		Body:      fmt.Sprintf("Kick-off at %s UTC", fixture.KickoffAt.UTC().Format("15:04")),
	}
	req := CreateScheduleRequest{AudienceKeys: audienceKeys, SendAt: target, Payload: payload}

	switch decideConvergence(now, target, entry, signature, s.cfg.UpdateBuffer) {
	case actionSkipSignatureMatch:
		return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
			models.OutcomeSkipped, models.ReasonSignatureMatch, nil)

	case actionSkipUpdateBuffer:
		return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
			models.OutcomeSkipped, models.ReasonUpdateBuffer,
			map[string]any{"entry_send_at": entry.SendAt, "target_send_at": target})

	case actionRecreateLegacy:
		// The platform rejects updates against the old id format. Drop the
		// entry and run the create path fresh.
		s.logger.Printf("convergence: migrating legacy remote id fixture=%d old_remote_id=%s", fixture.ID, entry.RemoteScheduleID)
		if delErr := s.ledgerRepo.DeleteByID(ctx, entry.ID); delErr != nil {
			return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, delErr)
		}
		return s.createSchedule(ctx, fixture, req, models.ReasonLegacyRemoteID)

	case actionCreate:
		return s.createSchedule(ctx, fixture, req, models.ReasonConverged)

	case actionUpdate:
		updErr := s.client.UpdateSchedule(ctx, entry.RemoteScheduleID, req)
		observeRemoteCall("update_schedule", updErr)
		if updErr != nil {
			// Entry keeps the old signature, so the next pass retries
			return s.errorOutcome(fixture.ID, models.ReasonRemoteUpdateFailed, updErr)
		}
		if storeErr := s.ledgerRepo.UpdateConvergence(ctx, entry.ID, signature, target, audienceKeys); storeErr != nil {
			return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, storeErr)
		}
		return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
			models.OutcomeUpdated, models.ReasonConverged,
			map[string]any{"remote_schedule_id": entry.RemoteScheduleID, "send_at": target})

	default:
		return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
			models.OutcomeSkipped, models.ReasonWindowMissed, nil)
	}
}

// createSchedule runs the two-phase create: reserve the ledger row first, call
// the platform, then promote the placeholder to the real remote id. A remote
// failure rolls the reservation back so the next pass can retry.
func (s *ConvergenceScheduler) createSchedule(ctx context.Context, fixture *models.Fixture, req CreateScheduleRequest, reason string) *models.RunOutcome {
	placeholder := &models.NotificationLedger{
		FixtureID:        fixture.ID,
		RemoteScheduleID: models.NewPlaceholderRemoteID(),
		Signature:        req.Payload.Signature,
		SendAt:           req.SendAt,
		Status:           models.LedgerStatusPending,
		AudienceKeys:     req.AudienceKeys,
	}
	if err := s.ledgerRepo.Reserve(ctx, placeholder); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveEntry) {
			return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
				models.OutcomeSkipped, models.ReasonReservationLost, nil)
		}
		return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, err)
	}

	remoteID, err := s.client.CreateSchedule(ctx, req)
	observeRemoteCall("create_schedule", err)
	if err != nil {
		if delErr := s.ledgerRepo.DeleteByID(ctx, placeholder.ID); delErr != nil {
			// The placeholder id never reaches the platform, so the reconciler
			// cannot see it; the verifier flags the stuck row instead
			s.logger.Printf("convergence: failed to roll back reservation fixture=%d: %v", fixture.ID, delErr)
		}
		return s.errorOutcome(fixture.ID, models.ReasonRemoteCreateFailed, err)
	}

	if err := s.ledgerRepo.PromoteRemoteID(ctx, placeholder.ID, remoteID); err != nil {
		// Remote object exists but the ledger lost its id; the reconciler
		// cancels it as an orphan on the next pass
		s.logger.Printf("convergence: failed to promote remote id fixture=%d remote_id=%s: %v", fixture.ID, remoteID, err)
		return s.errorOutcome(fixture.ID, models.ReasonStoreFailure, err)
	}

	return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixture.ID),
		models.OutcomeCreated, reason,
		map[string]any{"remote_schedule_id": remoteID, "send_at": req.SendAt})
}

func (s *ConvergenceScheduler) errorOutcome(fixtureID uint, reason string, err error) *models.RunOutcome {
	s.logger.Printf("convergence: fixture=%d reason=%s error: %v", fixtureID, reason, err)
	return newRunOutcome(utils.RunNameConvergence, utils.ToPtr(fixtureID),
		models.OutcomeError, reason, map[string]any{"error": err.Error()})
}
