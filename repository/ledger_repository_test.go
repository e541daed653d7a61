package repository

import (
	"context"
	"testing"
	"time"

	"github.com/matchops/fixturecast/models"
	dbtest "github.com/matchops/fixturecast/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepoTest(t *testing.T) *dbtest.TestDB {
	t.Helper()
	tdb, err := dbtest.SetupTestDB()
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := tdb.TeardownTestDB(); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})
	return tdb
}

func TestReserveEnforcesSingleActiveEntry(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	fixture, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)

	sendAt := fixture.KickoffAt.Add(-time.Hour)
	first := &models.NotificationLedger{
		FixtureID:        fixture.ID,
		RemoteScheduleID: models.NewPlaceholderRemoteID(),
		Signature:        "sig1",
		SendAt:           sendAt,
		Status:           models.LedgerStatusPending,
		AudienceKeys:     []string{"follows_ajax"},
	}
	require.NoError(t, repo.Reserve(ctx, first))
	require.NotZero(t, first.ID)

	second := &models.NotificationLedger{
		FixtureID:        fixture.ID,
		RemoteScheduleID: models.NewPlaceholderRemoteID(),
		Signature:        "sig2",
		SendAt:           sendAt,
		Status:           models.LedgerStatusPending,
		AudienceKeys:     []string{"follows_ajax"},
	}
	err = repo.Reserve(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateActiveEntry)

	// A cancelled row releases the constraint
	require.NoError(t, repo.CancelByID(ctx, first.ID))
	third := &models.NotificationLedger{
		FixtureID:        fixture.ID,
		RemoteScheduleID: models.NewPlaceholderRemoteID(),
		Signature:        "sig3",
		SendAt:           sendAt,
		Status:           models.LedgerStatusPending,
		AudienceKeys:     []string{"follows_ajax"},
	}
	assert.NoError(t, repo.Reserve(ctx, third))
}

func TestPromoteRemoteID(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	fixture, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	entry, err := tdb.CreateTestLedgerEntry(fixture.ID, models.NewPlaceholderRemoteID(), "sig1",
		fixture.KickoffAt.Add(-time.Hour), models.LedgerStatusPending)
	require.NoError(t, err)

	require.NoError(t, repo.PromoteRemoteID(ctx, entry.ID, "cs_real_1"))

	got, err := repo.ActiveByFixtureID(ctx, fixture.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cs_real_1", got.RemoteScheduleID)
	assert.True(t, got.HasRealRemoteID())
}

func TestActiveByFixtureIDIgnoresCancelled(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	fixture, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	_, err = tdb.CreateTestLedgerEntry(fixture.ID, "cs_1", "sig1",
		fixture.KickoffAt.Add(-time.Hour), models.LedgerStatusCancelled)
	require.NoError(t, err)

	got, err := repo.ActiveByFixtureID(ctx, fixture.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkSentIfPendingIsIdempotent(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	fixture, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	entry, err := tdb.CreateTestLedgerEntry(fixture.ID, "cs_1", "sig1",
		fixture.KickoffAt.Add(-time.Hour), models.LedgerStatusPending)
	require.NoError(t, err)

	dispatch := "disp_1"
	updates := []LedgerSentUpdate{{LedgerID: entry.ID, DispatchID: &dispatch}}
	require.NoError(t, repo.MarkSentIfPending(ctx, updates))

	got, err := repo.ByID(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.LedgerStatusSent, got.Status)
	require.NotNil(t, got.RemoteDispatchID)
	assert.Equal(t, "disp_1", *got.RemoteDispatchID)

	// A redelivered event must not overwrite correlation ids
	other := "disp_other"
	require.NoError(t, repo.MarkSentIfPending(ctx, []LedgerSentUpdate{{LedgerID: entry.ID, DispatchID: &other}}))
	again, err := repo.ByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "disp_1", *again.RemoteDispatchID)
}

func TestMarkSentBeforeOnlyTouchesOverdue(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	past, err := tdb.CreateTestFixture("ext-past", "Ajax", "Feyenoord", now.Add(-time.Hour))
	require.NoError(t, err)
	future, err := tdb.CreateTestFixture("ext-future", "PSV", "AZ", now.Add(24*time.Hour))
	require.NoError(t, err)

	overdue, err := tdb.CreateTestLedgerEntry(past.ID, "cs_past", "sig1", now.Add(-2*time.Hour), models.LedgerStatusPending)
	require.NoError(t, err)
	upcoming, err := tdb.CreateTestLedgerEntry(future.ID, "cs_future", "sig2", now.Add(23*time.Hour), models.LedgerStatusPending)
	require.NoError(t, err)

	affected, err := repo.MarkSentBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	gotOverdue, err := repo.ByID(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusSent, gotOverdue.Status)

	gotUpcoming, err := repo.ByID(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusPending, gotUpcoming.Status)
}

func TestCandidatesForCorrelation(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	f1, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", now.Add(2*time.Hour))
	require.NoError(t, err)
	f2, err := tdb.CreateTestFixture("ext-2", "PSV", "AZ", now.Add(48*time.Hour))
	require.NoError(t, err)

	inWindow, err := tdb.CreateTestLedgerEntry(f1.ID, "cs_1", "sig1", now, models.LedgerStatusPending)
	require.NoError(t, err)
	outOfWindow, err := tdb.CreateTestLedgerEntry(f2.ID, "cs_2", "sig2", now.Add(47*time.Hour), models.LedgerStatusSent)
	require.NoError(t, err)

	dispatch := "disp_far"
	require.NoError(t, tdb.DB.Model(&models.NotificationLedger{}).
		Where("id = ?", outOfWindow.ID).
		Update("remote_dispatch_id", dispatch).Error)

	candidates, err := repo.CandidatesForCorrelation(ctx, []string{"disp_far"}, nil,
		now.Add(-10*time.Minute), now.Add(10*time.Minute))
	require.NoError(t, err)

	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, inWindow.ID, "window match")
	assert.Contains(t, ids, outOfWindow.ID, "correlation-id match outside the window")
}

func TestCandidatesForCorrelationExcludesCancelled(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	f1, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", now.Add(2*time.Hour))
	require.NoError(t, err)
	f2, err := tdb.CreateTestFixture("ext-2", "PSV", "AZ", now.Add(3*time.Hour))
	require.NoError(t, err)

	cancelled, err := tdb.CreateTestLedgerEntry(f1.ID, "cs_dead", "sig1", now, models.LedgerStatusCancelled)
	require.NoError(t, err)
	require.NoError(t, tdb.DB.Model(&models.NotificationLedger{}).
		Where("id = ?", cancelled.ID).
		Update("remote_dispatch_id", "disp_dead").Error)
	pending, err := tdb.CreateTestLedgerEntry(f2.ID, "cs_live", "sig2", now.Add(5*time.Minute), models.LedgerStatusPending)
	require.NoError(t, err)

	candidates, err := repo.CandidatesForCorrelation(ctx, []string{"disp_dead"}, nil,
		now.Add(-10*time.Minute), now.Add(10*time.Minute))
	require.NoError(t, err)

	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, pending.ID)
	assert.NotContains(t, ids, cancelled.ID, "cancelled rows never correlate, even by dispatch id")
}

func TestPurgeTerminalOlderThan(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewNotificationLedgerRepository(tdb.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	f1, err := tdb.CreateTestFixture("ext-1", "Ajax", "Feyenoord", now.Add(-40*24*time.Hour))
	require.NoError(t, err)
	f2, err := tdb.CreateTestFixture("ext-2", "PSV", "AZ", now.Add(-40*24*time.Hour))
	require.NoError(t, err)

	old, err := tdb.CreateTestLedgerEntry(f1.ID, "cs_old", "sig1",
		now.Add(-35*24*time.Hour), models.LedgerStatusSent)
	require.NoError(t, err)
	pendingOld, err := tdb.CreateTestLedgerEntry(f2.ID, "cs_pending_old", "sig2",
		now.Add(-34*24*time.Hour), models.LedgerStatusPending)
	require.NoError(t, err)

	purged, err := repo.PurgeTerminalOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, err := repo.ByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.ByID(ctx, pendingOld.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "pending rows are never purged")
}
