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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfirmationRepo struct {
	repository.DeliveryConfirmationRepository
	confirmed map[uint]bool
}

func (f *fakeConfirmationRepo) ExistsForLedger(ctx context.Context, ledgerID uint) (bool, error) {
	return f.confirmed[ledgerID], nil
}

func testVerifier(ledger *fakeReconLedgerRepo, confirmations *fakeConfirmationRepo, client *fakeClient) (*Verifier, *fakeOutcomeRepo) {
	outcomes := &fakeOutcomeRepo{}
	cfg := config.SchedulerConfig{Lookahead: 7 * 24 * time.Hour, LockTTL: 5 * time.Minute}
	v := NewVerifier(ledger, confirmations, outcomes, newFakeLockRepo(), client,
		cfg, "fixturecast", 10*time.Minute, log.New(io.Discard, "", 0))
	return v, outcomes
}

func TestVerifierAlertsOnMissingRemote(t *testing.T) {
	now := time.Now().UTC()
	ledger := &fakeReconLedgerRepo{pending: []*models.NotificationLedger{
		{ID: 1, FixtureID: 7, RemoteScheduleID: "cs_gone", SendAt: now.Add(time.Hour), Status: models.LedgerStatusPending},
		{ID: 2, FixtureID: 8, RemoteScheduleID: "cs_present", SendAt: now.Add(time.Hour), Status: models.LedgerStatusPending},
	}}
	client := &fakeClient{schedules: []RemoteSchedule{
		remote("cs_present", 8, "sig", now.Add(time.Hour)),
	}}
	v, outcomes := testVerifier(ledger, &fakeConfirmationRepo{}, client)

	summary, err := v.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)

	require.Len(t, outcomes.saved, 1)
	assert.Equal(t, models.AlertMissingRemote, outcomes.saved[0].Outcome)
	require.NotNil(t, outcomes.saved[0].FixtureID)
	assert.Equal(t, uint(7), *outcomes.saved[0].FixtureID)
}

func TestVerifierIgnoresFreshPlaceholders(t *testing.T) {
	now := time.Now().UTC()
	ledger := &fakeReconLedgerRepo{pending: []*models.NotificationLedger{
		{ID: 1, FixtureID: 7, RemoteScheduleID: models.NewPlaceholderRemoteID(),
			SendAt: now.Add(time.Hour), Status: models.LedgerStatusPending, CreatedAt: now},
	}}
	v, outcomes := testVerifier(ledger, &fakeConfirmationRepo{}, &fakeClient{})

	summary, err := v.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Alerts, "a mid-reservation placeholder is not a defect")
	assert.Empty(t, outcomes.saved)
}

func TestVerifierAlertsOnAbandonedPlaceholder(t *testing.T) {
	now := time.Now().UTC()
	// Reserved an hour ago with a lock TTL of five minutes: the create that
	// made this row crashed without rolling back
	ledger := &fakeReconLedgerRepo{pending: []*models.NotificationLedger{
		{ID: 1, FixtureID: 7, RemoteScheduleID: models.NewPlaceholderRemoteID(),
			SendAt: now.Add(time.Hour), Status: models.LedgerStatusPending, CreatedAt: now.Add(-time.Hour)},
	}}
	v, outcomes := testVerifier(ledger, &fakeConfirmationRepo{}, &fakeClient{})

	summary, err := v.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)

	require.Len(t, outcomes.saved, 1)
	assert.Equal(t, models.AlertMissingRemote, outcomes.saved[0].Outcome)
	require.NotNil(t, outcomes.saved[0].FixtureID)
	assert.Equal(t, uint(7), *outcomes.saved[0].FixtureID)
}

func TestVerifierAlertsOnStalePending(t *testing.T) {
	now := time.Now().UTC()
	ledger := &fakeReconLedgerRepo{pending: []*models.NotificationLedger{
		// Past due beyond the grace window and never confirmed
		{ID: 1, FixtureID: 7, RemoteScheduleID: "cs_1", SendAt: now.Add(-time.Hour), Status: models.LedgerStatusPending},
		// Past due but confirmed
		{ID: 2, FixtureID: 8, RemoteScheduleID: "cs_2", SendAt: now.Add(-time.Hour), Status: models.LedgerStatusPending},
		// Past due but still inside the grace window
		{ID: 3, FixtureID: 9, RemoteScheduleID: "cs_3", SendAt: now.Add(-5 * time.Minute), Status: models.LedgerStatusPending},
	}}
	confirmations := &fakeConfirmationRepo{confirmed: map[uint]bool{2: true}}
	v, outcomes := testVerifier(ledger, confirmations, &fakeClient{})

	summary, err := v.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)

	require.Len(t, outcomes.saved, 1)
	assert.Equal(t, models.AlertStalePending, outcomes.saved[0].Outcome)
	require.NotNil(t, outcomes.saved[0].FixtureID)
	assert.Equal(t, uint(7), *outcomes.saved[0].FixtureID)
}

type fakeFixtureRepo struct {
	repository.FixtureRepository
	upcoming []*models.Fixture
}

func (f *fakeFixtureRepo) ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.Fixture, error) {
	return f.upcoming, nil
}

func TestGapDetectorAlertsOnUnrepairedGap(t *testing.T) {
	now := time.Now().UTC()
	audience, localization := testEnv()

	fixture := testFixture(now.Add(6 * time.Hour))
	fixtureRepo := &fakeFixtureRepo{upcoming: []*models.Fixture{fixture}}

	// Remote create keeps failing, so the repair pass cannot close the gap
	ledger := &fakeReconLedgerRepo{}
	client := &fakeClient{createErr: assert.AnError}
	outcomes := &fakeOutcomeRepo{}
	cfg := config.SchedulerConfig{
		Lookahead: 7 * 24 * time.Hour, LeadTime: time.Hour, UpdateBuffer: 20 * time.Minute,
		LockTTL: 5 * time.Minute, GapWindow: 48 * time.Hour,
	}
	logger := log.New(io.Discard, "", 0)
	convergence := NewConvergenceScheduler(fixtureRepo, &fakeLedgerRepo{}, outcomes, newFakeLockRepo(),
		audience, localization, client, cfg, "fixturecast", logger)
	g := NewGapDetector(fixtureRepo, ledger, outcomes, newFakeLockRepo(),
		audience, convergence, cfg, logger)

	summary, err := g.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)

	var sawRepair, sawAlert bool
	for _, o := range outcomes.saved {
		switch o.Reason {
		case models.ReasonAutoRepair:
			sawRepair = true
		case models.AlertMissingSchedule:
			sawAlert = true
		}
	}
	assert.True(t, sawRepair, "repair attempt must be recorded")
	assert.True(t, sawAlert, "remaining gap must alert")
}

func TestGapDetectorIgnoresCoveredFixtures(t *testing.T) {
	now := time.Now().UTC()
	audience, localization := testEnv()

	fixture := testFixture(now.Add(6 * time.Hour))
	fixtureRepo := &fakeFixtureRepo{upcoming: []*models.Fixture{fixture}}

	outcomes := &fakeOutcomeRepo{}
	cfg := config.SchedulerConfig{
		Lookahead: 7 * 24 * time.Hour, LeadTime: time.Hour, UpdateBuffer: 20 * time.Minute,
		LockTTL: 5 * time.Minute, GapWindow: 48 * time.Hour,
	}
	logger := log.New(io.Discard, "", 0)

	ledger := &fakeReconLedgerRepo{active: []*models.NotificationLedger{{
		ID: 1, FixtureID: fixture.ID, RemoteScheduleID: "cs_1",
		SendAt: now.Add(5 * time.Hour), Status: models.LedgerStatusPending,
	}}}

	convergence := NewConvergenceScheduler(fixtureRepo, ledger, outcomes, newFakeLockRepo(),
		audience, localization, &fakeClient{}, cfg, "fixturecast", logger)
	g := NewGapDetector(fixtureRepo, ledger, outcomes, newFakeLockRepo(),
		audience, convergence, cfg, logger)

	summary, err := g.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Alerts)
	assert.Empty(t, outcomes.saved, "no gaps means no repair pass")
}
