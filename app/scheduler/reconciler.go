package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/matchops/fixturecast/config"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
)

// cancelAction is one planned remote cancellation. LedgerID is set when a
// ledger row should be cancelled alongside the remote object.
type cancelAction struct {
	RemoteID  string
	FixtureID uint
	LedgerID  uint
	Reason    string
}

// planReconciliation diffs the platform's view of our schedules against the
// active ledger and returns the cancellations needed to restore agreement.
// Pure; takes only schedules carrying our source tag.
//
// Three defect classes are handled:
//   - stale:     remote id known to the ledger but its payload signature no
//     longer matches any active entry (a partial update left drift behind)
//   - orphan:    remote attributable to no tracked fixture; an unknown remote
//     id whose payload fixture still has an active entry is a duplicate
//     candidate instead, so the grouping step below decides which one survives
//   - duplicate: several remotes for one fixture; the entry-matching one wins,
//     otherwise the earliest next send instant
func planReconciliation(remotes []RemoteSchedule, entries []*models.NotificationLedger) []cancelAction {
	entryByRemoteID := make(map[string]*models.NotificationLedger, len(entries))
	entryByFixture := make(map[uint]*models.NotificationLedger, len(entries))
	desiredSigs := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		entryByRemoteID[e.RemoteScheduleID] = e
		entryByFixture[e.FixtureID] = e
		desiredSigs[e.Signature] = struct{}{}
	}

	var actions []cancelAction
	cancelled := make(map[string]struct{})

	for _, r := range remotes {
		entry, known := entryByRemoteID[r.RemoteID]
		if !known {
			if _, tracked := entryByFixture[r.Payload.FixtureID]; tracked && r.Payload.FixtureID != 0 {
				continue
			}
			actions = append(actions, cancelAction{
				RemoteID:  r.RemoteID,
				FixtureID: r.Payload.FixtureID,
				Reason:    models.ReasonCancelledOrphan,
			})
			cancelled[r.RemoteID] = struct{}{}
			continue
		}
		if _, desired := desiredSigs[r.Payload.Signature]; !desired {
			actions = append(actions, cancelAction{
				RemoteID:  r.RemoteID,
				FixtureID: entry.FixtureID,
				LedgerID:  entry.ID,
				Reason:    models.ReasonCancelledStale,
			})
			cancelled[r.RemoteID] = struct{}{}
		}
	}

	// Duplicate detection among survivors, grouped by the fixture id embedded
	// in the payload
	byFixture := make(map[uint][]RemoteSchedule)
	for _, r := range remotes {
		if _, gone := cancelled[r.RemoteID]; gone {
			continue
		}
		if r.Payload.FixtureID == 0 {
			continue
		}
		byFixture[r.Payload.FixtureID] = append(byFixture[r.Payload.FixtureID], r)
	}

	for fixtureID, group := range byFixture {
		if len(group) < 2 {
			continue
		}
		keep := ""
		if entry, ok := entryByFixture[fixtureID]; ok {
			for _, r := range group {
				if r.RemoteID == entry.RemoteScheduleID {
					keep = r.RemoteID
					break
				}
			}
		}
		if keep == "" {
			earliest := group[0]
			for _, r := range group[1:] {
				if r.NextSendAt.Before(earliest.NextSendAt) {
					earliest = r
				}
			}
			keep = earliest.RemoteID
		}
		for _, r := range group {
			if r.RemoteID == keep {
				continue
			}
			actions = append(actions, cancelAction{
				RemoteID:  r.RemoteID,
				FixtureID: fixtureID,
				Reason:    models.ReasonCancelledDuplicate,
			})
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Reason != actions[j].Reason {
			return actions[i].Reason < actions[j].Reason
		}
		return actions[i].RemoteID < actions[j].RemoteID
	})
	return actions
}

// Reconciler sweeps the remote platform for drift the convergence path cannot
// see: stale schedules, orphans and duplicates. It also moves overdue pending
// ledger rows to sent and purges terminal rows past retention.
type Reconciler struct {
	ledgerRepo  repository.NotificationLedgerRepository
	outcomeRepo repository.RunOutcomeRepository
	lockRepo    repository.ScheduleLockRepository
	client      PlatformClient
	cfg         config.SchedulerConfig
	sourceTag   string
	logger      *log.Logger
}

func NewReconciler(
	ledgerRepo repository.NotificationLedgerRepository,
	outcomeRepo repository.RunOutcomeRepository,
	lockRepo repository.ScheduleLockRepository,
	client PlatformClient,
	cfg config.SchedulerConfig,
	sourceTag string,
	logger *log.Logger,
) *Reconciler {
	return &Reconciler{
		ledgerRepo:  ledgerRepo,
		outcomeRepo: outcomeRepo,
		lockRepo:    lockRepo,
		client:      client,
		cfg:         cfg,
		sourceTag:   sourceTag,
		logger:      logger,
	}
}

// RunOnce executes one reconciliation sweep. The sweep defers to an active
// convergence run: cancelling while convergence is mid-create would race the
// reservation protocol.
func (r *Reconciler) RunOnce(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunName: utils.RunNameReconciler, StartedAt: utils.UTCNow()}
	defer func() { summary.FinishedAt = utils.UTCNow() }()

	now := utils.UTCNow()
	convergenceLock, err := r.lockRepo.Get(ctx, utils.RunNameConvergence)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect convergence lock: %w", err)
	}
	if convergenceLock != nil && !convergenceLock.Expired(now) {
		r.logger.Printf("reconciler: convergence run in progress, deferring")
		summary.Skipped++
		return summary, nil
	}

	holder := uuid.NewString()
	acquired, err := r.lockRepo.TryAcquire(ctx, utils.RunNameReconciler, holder, r.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire reconciler lock: %w", err)
	}
	if !acquired {
		lockAcquisitionsTotal.WithLabelValues(utils.RunNameReconciler, "contended").Inc()
		summary.Skipped++
		return summary, nil
	}
	lockAcquisitionsTotal.WithLabelValues(utils.RunNameReconciler, "acquired").Inc()
	summary.LockAcquired = true
	defer func() {
		if relErr := r.lockRepo.Release(ctx, utils.RunNameReconciler, holder); relErr != nil {
			r.logger.Printf("reconciler: failed to release lock: %v", relErr)
		}
	}()

	remotes, err := r.client.ListSchedules(ctx, now.Add(r.cfg.Lookahead))
	observeRemoteCall("list_schedules", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote schedules: %w", err)
	}

	// Schedules without our source tag belong to other systems and are never
	// touched
	ours := remotes[:0]
	for _, remote := range remotes {
		if remote.Payload.SourceTag == r.sourceTag {
			ours = append(ours, remote)
		}
	}

	entries, err := r.ledgerRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active ledger entries: %w", err)
	}

	for _, action := range planReconciliation(ours, entries) {
		r.applyCancellation(ctx, action, summary)
	}

	r.markOverdueSent(ctx, now, summary)
	r.purgeRetention(ctx, now, summary)

	r.logger.Printf("reconciler: sweep complete remotes=%d entries=%d cancelled=%d errors=%d",
		len(ours), len(entries), summary.Cancelled, summary.Errors)
	return summary, nil
}

func (r *Reconciler) applyCancellation(ctx context.Context, action cancelAction, summary *RunSummary) {
	var fixtureID *uint
	if action.FixtureID != 0 {
		fixtureID = utils.ToPtr(action.FixtureID)
	}

	err := r.client.DeleteSchedule(ctx, action.RemoteID)
	observeRemoteCall("delete_schedule", err)
	if err != nil {
		r.logger.Printf("reconciler: failed to cancel remote=%s reason=%s: %v", action.RemoteID, action.Reason, err)
		r.record(ctx, summary, newRunOutcome(utils.RunNameReconciler, fixtureID,
			models.OutcomeError, action.Reason,
			map[string]any{"remote_schedule_id": action.RemoteID, "error": err.Error()}))
		return
	}

	if action.LedgerID != 0 {
		if cancelErr := r.ledgerRepo.CancelByID(ctx, action.LedgerID); cancelErr != nil {
			r.logger.Printf("reconciler: remote cancelled but ledger row %d not updated: %v", action.LedgerID, cancelErr)
			r.record(ctx, summary, newRunOutcome(utils.RunNameReconciler, fixtureID,
				models.OutcomeError, models.ReasonStoreFailure,
				map[string]any{"remote_schedule_id": action.RemoteID, "ledger_id": action.LedgerID, "error": cancelErr.Error()}))
			return
		}
	}

	r.record(ctx, summary, newRunOutcome(utils.RunNameReconciler, fixtureID,
		models.OutcomeCancelled, action.Reason,
		map[string]any{"remote_schedule_id": action.RemoteID}))
}

// markOverdueSent transitions pending rows whose send instant passed. Rows are
// fetched first so every transition gets its own outcome record.
func (r *Reconciler) markOverdueSent(ctx context.Context, now time.Time, summary *RunSummary) {
	pending, err := r.ledgerRepo.ListPending(ctx)
	if err != nil {
		r.logger.Printf("reconciler: failed to list pending entries: %v", err)
		summary.Errors++
		return
	}

	var overdue []*models.NotificationLedger
	for _, entry := range pending {
		if entry.SendAt.Before(now) {
			overdue = append(overdue, entry)
		}
	}
	if len(overdue) == 0 {
		return
	}

	if _, err := r.ledgerRepo.MarkSentBefore(ctx, now); err != nil {
		r.logger.Printf("reconciler: failed to mark overdue entries sent: %v", err)
		summary.Errors++
		return
	}

	for _, entry := range overdue {
		r.record(ctx, summary, newRunOutcome(utils.RunNameReconciler, utils.ToPtr(entry.FixtureID),
			models.OutcomeUpdated, models.ReasonMarkedSent,
			map[string]any{"ledger_id": entry.ID, "send_at": entry.SendAt}))
	}
}

func (r *Reconciler) purgeRetention(ctx context.Context, now time.Time, summary *RunSummary) {
	if r.cfg.RetentionPeriod <= 0 {
		return
	}
	purged, err := r.ledgerRepo.PurgeTerminalOlderThan(ctx, now.Add(-r.cfg.RetentionPeriod))
	if err != nil {
		r.logger.Printf("reconciler: retention purge failed: %v", err)
		summary.Errors++
		return
	}
	if purged > 0 {
		r.record(ctx, summary, newRunOutcome(utils.RunNameReconciler, nil,
			models.OutcomeUpdated, models.ReasonPurgedRetention,
			map[string]any{"purged": purged}))
	}
}

func (r *Reconciler) record(ctx context.Context, summary *RunSummary, outcome *models.RunOutcome) {
	summary.tally(outcome.Outcome)
	runOutcomesTotal.WithLabelValues(utils.RunNameReconciler, outcome.Outcome).Inc()
	if err := r.outcomeRepo.Save(ctx, outcome); err != nil {
		r.logger.Printf("reconciler: failed to record outcome: %v", err)
	}
}
