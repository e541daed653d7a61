package scheduler

import (
	"context"
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

// Verifier is a read-only cross-check of ledger against platform. It never
// mutates either side; defects become alert outcomes for the dashboard.
type Verifier struct {
	ledgerRepo       repository.NotificationLedgerRepository
	confirmationRepo repository.DeliveryConfirmationRepository
	outcomeRepo      repository.RunOutcomeRepository
	lockRepo         repository.ScheduleLockRepository
	client           PlatformClient
	cfg              config.SchedulerConfig
	sourceTag        string
	// grace before a past-due unconfirmed row counts as stale
	confirmationGrace time.Duration
	logger            *log.Logger
}

func NewVerifier(
	ledgerRepo repository.NotificationLedgerRepository,
	confirmationRepo repository.DeliveryConfirmationRepository,
	outcomeRepo repository.RunOutcomeRepository,
	lockRepo repository.ScheduleLockRepository,
	client PlatformClient,
	cfg config.SchedulerConfig,
	sourceTag string,
	confirmationGrace time.Duration,
	logger *log.Logger,
) *Verifier {
	return &Verifier{
		ledgerRepo:        ledgerRepo,
		confirmationRepo:  confirmationRepo,
		outcomeRepo:       outcomeRepo,
		lockRepo:          lockRepo,
		client:            client,
		cfg:               cfg,
		sourceTag:         sourceTag,
		confirmationGrace: confirmationGrace,
		logger:            logger,
	}
}

// RunOnce scans pending ledger rows for three defect classes: a future row
// whose remote schedule no longer exists, a reservation placeholder abandoned
// by a crashed create, and a past-due row that never received a delivery
// confirmation.
func (v *Verifier) RunOnce(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunName: utils.RunNameVerifier, StartedAt: utils.UTCNow()}
	defer func() { summary.FinishedAt = utils.UTCNow() }()

	holder := uuid.NewString()
	acquired, err := v.lockRepo.TryAcquire(ctx, utils.RunNameVerifier, holder, v.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire verifier lock: %w", err)
	}
	if !acquired {
		lockAcquisitionsTotal.WithLabelValues(utils.RunNameVerifier, "contended").Inc()
		summary.Skipped++
		return summary, nil
	}
	lockAcquisitionsTotal.WithLabelValues(utils.RunNameVerifier, "acquired").Inc()
	summary.LockAcquired = true
	defer func() {
		if relErr := v.lockRepo.Release(ctx, utils.RunNameVerifier, holder); relErr != nil {
			v.logger.Printf("verifier: failed to release lock: %v", relErr)
		}
	}()

	now := utils.UTCNow()
	remotes, err := v.client.ListSchedules(ctx, now.Add(v.cfg.Lookahead))
	observeRemoteCall("list_schedules", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote schedules: %w", err)
	}
	remoteIDs := make(map[string]struct{}, len(remotes))
	for _, remote := range remotes {
		if remote.Payload.SourceTag == v.sourceTag {
			remoteIDs[remote.RemoteID] = struct{}{}
		}
	}

	pending, err := v.ledgerRepo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}

	for _, entry := range pending {
		if entry.SendAt.After(now) {
			if entry.HasRealRemoteID() {
				if _, present := remoteIDs[entry.RemoteScheduleID]; !present {
					v.alert(ctx, summary, entry, models.AlertMissingRemote,
						map[string]any{"remote_schedule_id": entry.RemoteScheduleID, "send_at": entry.SendAt})
				}
			} else if now.Sub(entry.CreatedAt) > v.cfg.LockTTL {
				// A reservation placeholder cannot outlive the convergence
				// lock; an older one is a crashed create whose rollback never
				// ran, and it blocks re-creation until cleared
				v.alert(ctx, summary, entry, models.AlertMissingRemote,
					map[string]any{"remote_schedule_id": entry.RemoteScheduleID, "reserved_at": entry.CreatedAt})
			}
			continue
		}

		if now.Sub(entry.SendAt) < v.confirmationGrace {
			continue
		}
		confirmed, err := v.confirmationRepo.ExistsForLedger(ctx, entry.ID)
		if err != nil {
			v.logger.Printf("verifier: failed to check confirmations for ledger %d: %v", entry.ID, err)
			summary.Errors++
			continue
		}
		if !confirmed {
			v.alert(ctx, summary, entry, models.AlertStalePending,
				map[string]any{"ledger_id": entry.ID, "send_at": entry.SendAt})
		}
	}

	v.logger.Printf("verifier: scan complete pending=%d alerts=%d errors=%d",
		len(pending), summary.Alerts, summary.Errors)
	return summary, nil
}

func (v *Verifier) alert(ctx context.Context, summary *RunSummary, entry *models.NotificationLedger, code string, detail map[string]any) {
	summary.Alerts++
	runOutcomesTotal.WithLabelValues(utils.RunNameVerifier, code).Inc()
	outcome := newRunOutcome(utils.RunNameVerifier, utils.ToPtr(entry.FixtureID), code, code, detail)
	if err := v.outcomeRepo.Save(ctx, outcome); err != nil {
		v.logger.Printf("verifier: failed to record alert: %v", err)
	}
}

// GapDetector scans the near horizon for eligible fixtures that have no active
// ledger entry, attempts one convergence pass to repair, and alerts on whatever
// remains.
type GapDetector struct {
	fixtureRepo repository.FixtureRepository
	ledgerRepo  repository.NotificationLedgerRepository
	outcomeRepo repository.RunOutcomeRepository
	lockRepo    repository.ScheduleLockRepository
	audience    services.AudienceService
	convergence *ConvergenceScheduler
	cfg         config.SchedulerConfig
	logger      *log.Logger
}

func NewGapDetector(
	fixtureRepo repository.FixtureRepository,
	ledgerRepo repository.NotificationLedgerRepository,
	outcomeRepo repository.RunOutcomeRepository,
	lockRepo repository.ScheduleLockRepository,
	audience services.AudienceService,
	convergence *ConvergenceScheduler,
	cfg config.SchedulerConfig,
	logger *log.Logger,
) *GapDetector {
	return &GapDetector{
		fixtureRepo: fixtureRepo,
		ledgerRepo:  ledgerRepo,
		outcomeRepo: outcomeRepo,
		lockRepo:    lockRepo,
		audience:    audience,
		convergence: convergence,
		cfg:         cfg,
		logger:      logger,
	}
}

func (g *GapDetector) RunOnce(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunName: utils.RunNameGapDetector, StartedAt: utils.UTCNow()}
	defer func() { summary.FinishedAt = utils.UTCNow() }()

	holder := uuid.NewString()
	acquired, err := g.lockRepo.TryAcquire(ctx, utils.RunNameGapDetector, holder, g.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire gap detector lock: %w", err)
	}
	if !acquired {
		lockAcquisitionsTotal.WithLabelValues(utils.RunNameGapDetector, "contended").Inc()
		summary.Skipped++
		return summary, nil
	}
	lockAcquisitionsTotal.WithLabelValues(utils.RunNameGapDetector, "acquired").Inc()
	summary.LockAcquired = true
	defer func() {
		if relErr := g.lockRepo.Release(ctx, utils.RunNameGapDetector, holder); relErr != nil {
			g.logger.Printf("gap detector: failed to release lock: %v", relErr)
		}
	}()

	gaps, err := g.findGaps(ctx)
	if err != nil {
		return nil, err
	}
	if len(gaps) == 0 {
		g.logger.Printf("gap detector: no gaps found")
		return summary, nil
	}

	// One repair attempt, then re-scan; anything still missing is a real alert
	g.logger.Printf("gap detector: found %d gaps, attempting repair", len(gaps))
	repair := newRunOutcome(utils.RunNameGapDetector, nil,
		models.OutcomeUpdated, models.ReasonAutoRepair,
		map[string]any{"gaps": len(gaps)})
	summary.tally(repair.Outcome)
	if saveErr := g.outcomeRepo.Save(ctx, repair); saveErr != nil {
		g.logger.Printf("gap detector: failed to record repair outcome: %v", saveErr)
	}
	if _, convErr := g.convergence.RunOnce(ctx); convErr != nil {
		g.logger.Printf("gap detector: repair convergence pass failed: %v", convErr)
	}

	remaining, err := g.findGaps(ctx)
	if err != nil {
		return nil, err
	}
	for _, fixture := range remaining {
		summary.Alerts++
		runOutcomesTotal.WithLabelValues(utils.RunNameGapDetector, models.AlertMissingSchedule).Inc()
		outcome := newRunOutcome(utils.RunNameGapDetector, utils.ToPtr(fixture.ID),
			models.AlertMissingSchedule, models.AlertMissingSchedule,
			map[string]any{"external_id": fixture.ExternalID, "kickoff_at": fixture.KickoffAt})
		if saveErr := g.outcomeRepo.Save(ctx, outcome); saveErr != nil {
			g.logger.Printf("gap detector: failed to record alert: %v", saveErr)
		}
	}

	g.logger.Printf("gap detector: scan complete gaps=%d remaining=%d", len(gaps), len(remaining))
	return summary, nil
}

// findGaps returns eligible fixtures inside the gap window whose send window
// is still open but which have no active ledger entry
func (g *GapDetector) findGaps(ctx context.Context) ([]*models.Fixture, error) {
	attrs, err := g.audience.NotableAttributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notable set: %w", err)
	}
	aliases, err := g.audience.Aliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}

	now := utils.UTCNow()
	fixtures, err := g.fixtureRepo.ListUpcoming(ctx, now, now.Add(g.cfg.GapWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to list fixtures: %w", err)
	}

	var gaps []*models.Fixture
	for _, fixture := range fixtures {
		home := models.CanonicalizeName(fixture.HomeTeam, aliases)
		away := models.CanonicalizeName(fixture.AwayTeam, aliases)
		_, homeNotable := attrs[home]
		_, awayNotable := attrs[away]
		if !homeNotable && !awayNotable {
			continue
		}
		if !fixture.KickoffAt.Add(-g.cfg.LeadTime).After(now) {
			continue
		}
		entry, err := g.ledgerRepo.ActiveByFixtureID(ctx, fixture.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ledger for fixture %d: %w", fixture.ID, err)
		}
		if entry == nil {
			gaps = append(gaps, fixture)
		}
	}
	return gaps, nil
}
