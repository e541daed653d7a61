package scheduler

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/matchops/fixturecast/config"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remote(id string, fixtureID uint, signature string, nextSendAt time.Time) RemoteSchedule {
	return RemoteSchedule{
		RemoteID:   id,
		NextSendAt: nextSendAt,
		Payload:    SchedulePayload{SourceTag: "fixturecast", FixtureID: fixtureID, Signature: signature},
	}
}

func activeEntry(id uint, fixtureID uint, remoteID, signature string) *models.NotificationLedger {
	return &models.NotificationLedger{
		ID: id, FixtureID: fixtureID, RemoteScheduleID: remoteID,
		Signature: signature, Status: models.LedgerStatusPending,
	}
}

func TestPlanReconciliationCleanStateNeedsNothing(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{remote("cs_1", 1, "sig1", sendAt)}
	entries := []*models.NotificationLedger{activeEntry(10, 1, "cs_1", "sig1")}

	assert.Empty(t, planReconciliation(remotes, entries))
}

func TestPlanReconciliationCancelsOrphans(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{
		remote("cs_1", 1, "sig1", sendAt),
		remote("cs_ghost", 2, "sig2", sendAt),
	}
	entries := []*models.NotificationLedger{activeEntry(10, 1, "cs_1", "sig1")}

	actions := planReconciliation(remotes, entries)
	require.Len(t, actions, 1)
	assert.Equal(t, "cs_ghost", actions[0].RemoteID)
	assert.Equal(t, models.ReasonCancelledOrphan, actions[0].Reason)
	assert.Zero(t, actions[0].LedgerID, "orphans have no ledger row to cancel")
}

func TestPlanReconciliationCancelsStaleWithLedgerRow(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	// The remote payload carries a signature no active entry wants anymore
	remotes := []RemoteSchedule{remote("cs_1", 1, "sig_old", sendAt)}
	entries := []*models.NotificationLedger{activeEntry(10, 1, "cs_1", "sig_new")}

	actions := planReconciliation(remotes, entries)
	require.Len(t, actions, 1)
	assert.Equal(t, "cs_1", actions[0].RemoteID)
	assert.Equal(t, models.ReasonCancelledStale, actions[0].Reason)
	assert.Equal(t, uint(10), actions[0].LedgerID, "stale cancel must also cancel the ledger row")
	assert.Equal(t, uint(1), actions[0].FixtureID)
}

func TestPlanReconciliationDuplicateKeepsEntryMatch(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{
		remote("cs_a", 1, "sig1", sendAt.Add(time.Hour)),
		remote("cs_b", 1, "sig1", sendAt),
	}
	// The entry points at the later one; it still wins over the earlier send
	entries := []*models.NotificationLedger{activeEntry(10, 1, "cs_a", "sig1")}

	actions := planReconciliation(remotes, entries)
	require.Len(t, actions, 1)
	assert.Equal(t, "cs_b", actions[0].RemoteID)
	assert.Equal(t, models.ReasonCancelledDuplicate, actions[0].Reason)
}

func TestPlanReconciliationDuplicateKeepsEarliestWithoutEntryMatch(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{
		remote("cs_late", 1, "sig1", sendAt.Add(2*time.Hour)),
		remote("cs_early", 1, "sig1", sendAt),
		remote("cs_mid", 1, "sig1", sendAt.Add(time.Hour)),
	}
	// Entry references a remote id absent from the listing
	entries := []*models.NotificationLedger{activeEntry(10, 1, "cs_gone", "sig1")}

	actions := planReconciliation(remotes, entries)

	cancelledIDs := make([]string, 0, len(actions))
	for _, a := range actions {
		if a.Reason == models.ReasonCancelledDuplicate {
			cancelledIDs = append(cancelledIDs, a.RemoteID)
		}
	}
	assert.ElementsMatch(t, []string{"cs_late", "cs_mid"}, cancelledIDs)
	assert.NotContains(t, cancelledIDs, "cs_early", "the earliest send instant survives")
}

func TestPlanReconciliationOrphanRequiresUntrackedFixture(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{
		remote("cs_a", 1, "sig1", sendAt),
		// Unknown remote id, but fixture 1 is tracked: duplicate, not orphan
		remote("cs_extra", 1, "sig1", sendAt.Add(time.Hour)),
		// Unknown remote id for an untracked fixture: orphan
		remote("cs_ghost", 2, "sig2", sendAt),
	}
	entries := []*models.NotificationLedger{activeEntry(10, 1, "cs_a", "sig1")}

	actions := planReconciliation(remotes, entries)
	require.Len(t, actions, 2)

	reasons := map[string]string{}
	for _, a := range actions {
		reasons[a.RemoteID] = a.Reason
	}
	assert.Equal(t, models.ReasonCancelledDuplicate, reasons["cs_extra"])
	assert.Equal(t, models.ReasonCancelledOrphan, reasons["cs_ghost"])
	assert.NotContains(t, reasons, "cs_a", "the entry-matching remote survives")
}

func TestPlanReconciliationStaleRemovedBeforeDuplicateGrouping(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{
		remote("cs_good", 1, "sig_new", sendAt),
		remote("cs_stale", 1, "sig_old", sendAt.Add(-time.Hour)),
	}
	entries := []*models.NotificationLedger{
		activeEntry(10, 1, "cs_good", "sig_new"),
		activeEntry(11, 2, "cs_stale", "sig_other"),
	}

	actions := planReconciliation(remotes, entries)
	require.Len(t, actions, 1, "stale cancel removes the pair, no duplicate left")
	assert.Equal(t, "cs_stale", actions[0].RemoteID)
	assert.Equal(t, models.ReasonCancelledStale, actions[0].Reason)
}

func TestPlanReconciliationOrderingIsDeterministic(t *testing.T) {
	sendAt := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	remotes := []RemoteSchedule{
		remote("cs_z", 3, "sigz", sendAt),
		remote("cs_a", 2, "siga", sendAt),
	}

	actions := planReconciliation(remotes, nil)
	require.Len(t, actions, 2)
	assert.Equal(t, "cs_a", actions[0].RemoteID)
	assert.Equal(t, "cs_z", actions[1].RemoteID)
}

type fakeLockRepo struct {
	repository.ScheduleLockRepository
	locks    map[string]*models.ScheduleLock
	acquired []string
	released []string
	denied   map[string]bool
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{locks: map[string]*models.ScheduleLock{}, denied: map[string]bool{}}
}

func (f *fakeLockRepo) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if f.denied[name] {
		return false, nil
	}
	f.acquired = append(f.acquired, name)
	return true, nil
}

func (f *fakeLockRepo) Release(ctx context.Context, name, holder string) error {
	f.released = append(f.released, name)
	return nil
}

func (f *fakeLockRepo) Get(ctx context.Context, name string) (*models.ScheduleLock, error) {
	return f.locks[name], nil
}

type fakeReconLedgerRepo struct {
	repository.NotificationLedgerRepository
	active       []*models.NotificationLedger
	pending      []*models.NotificationLedger
	cancelledIDs []uint
	markedBefore *time.Time
	purged       int64
}

func (f *fakeReconLedgerRepo) ListActive(ctx context.Context) ([]*models.NotificationLedger, error) {
	return f.active, nil
}

func (f *fakeReconLedgerRepo) ActiveByFixtureID(ctx context.Context, fixtureID uint) (*models.NotificationLedger, error) {
	for _, e := range f.active {
		if e.FixtureID == fixtureID {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeReconLedgerRepo) ListPending(ctx context.Context) ([]*models.NotificationLedger, error) {
	return f.pending, nil
}

func (f *fakeReconLedgerRepo) CancelByID(ctx context.Context, ledgerID uint) error {
	f.cancelledIDs = append(f.cancelledIDs, ledgerID)
	return nil
}

func (f *fakeReconLedgerRepo) MarkSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.markedBefore = &cutoff
	return int64(len(f.pending)), nil
}

func (f *fakeReconLedgerRepo) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.purged, nil
}

func testReconciler(ledger *fakeReconLedgerRepo, client *fakeClient, locks *fakeLockRepo) (*Reconciler, *fakeOutcomeRepo) {
	outcomes := &fakeOutcomeRepo{}
	cfg := config.SchedulerConfig{Lookahead: 7 * 24 * time.Hour, LockTTL: 5 * time.Minute, RetentionPeriod: 30 * 24 * time.Hour}
	return NewReconciler(ledger, outcomes, locks, client, cfg, "fixturecast", log.New(io.Discard, "", 0)), outcomes
}

func TestReconcilerDefersToActiveConvergenceRun(t *testing.T) {
	locks := newFakeLockRepo()
	locks.locks[utils.RunNameConvergence] = &models.ScheduleLock{
		Name:      utils.RunNameConvergence,
		Holder:    "other",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	client := &fakeClient{}
	r, _ := testReconciler(&fakeReconLedgerRepo{}, client, locks)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.LockAcquired)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, locks.acquired, "must not take its own lock while deferring")
}

func TestReconcilerIgnoresForeignSourceTags(t *testing.T) {
	sendAt := time.Now().UTC().Add(time.Hour)
	locks := newFakeLockRepo()
	client := &fakeClient{schedules: []RemoteSchedule{
		{RemoteID: "cs_foreign", NextSendAt: sendAt, Payload: SchedulePayload{SourceTag: "other_system", FixtureID: 99}},
	}}
	ledger := &fakeReconLedgerRepo{}
	r, outcomes := testReconciler(ledger, client, locks)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.LockAcquired)
	assert.Empty(t, client.deletedIDs, "foreign schedules are never touched")
	assert.Empty(t, outcomes.saved)
}

func TestReconcilerCancelsStaleRemoteAndLedgerRow(t *testing.T) {
	sendAt := time.Now().UTC().Add(time.Hour)
	locks := newFakeLockRepo()
	client := &fakeClient{schedules: []RemoteSchedule{remote("cs_1", 1, "sig_old", sendAt)}}
	ledger := &fakeReconLedgerRepo{active: []*models.NotificationLedger{activeEntry(10, 1, "cs_1", "sig_new")}}
	r, outcomes := testReconciler(ledger, client, locks)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_1"}, client.deletedIDs)
	assert.Equal(t, []uint{10}, ledger.cancelledIDs)
	assert.Equal(t, 1, summary.Cancelled)

	require.Len(t, outcomes.saved, 1)
	assert.Equal(t, models.OutcomeCancelled, outcomes.saved[0].Outcome)
	assert.Equal(t, models.ReasonCancelledStale, outcomes.saved[0].Reason)
}

func TestReconcilerMarksOverdueEntriesSent(t *testing.T) {
	now := time.Now().UTC()
	locks := newFakeLockRepo()
	client := &fakeClient{}
	ledger := &fakeReconLedgerRepo{pending: []*models.NotificationLedger{
		{ID: 5, FixtureID: 3, RemoteScheduleID: "cs_5", SendAt: now.Add(-time.Hour), Status: models.LedgerStatusPending},
	}}
	r, outcomes := testReconciler(ledger, client, locks)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ledger.markedBefore)

	require.Len(t, outcomes.saved, 1)
	assert.Equal(t, models.OutcomeUpdated, outcomes.saved[0].Outcome)
	assert.Equal(t, models.ReasonMarkedSent, outcomes.saved[0].Reason)
	assert.Equal(t, 1, summary.Updated)
}

func TestReconcilerReleasesLockAfterSweep(t *testing.T) {
	locks := newFakeLockRepo()
	r, _ := testReconciler(&fakeReconLedgerRepo{}, &fakeClient{}, locks)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{utils.RunNameReconciler}, locks.acquired)
	assert.Equal(t, []string{utils.RunNameReconciler}, locks.released)
}
