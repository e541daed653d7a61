package scheduler

import (
	"context"
	"errors"
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

func TestDecideConvergence(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	future := now.Add(2 * time.Hour)
	buffer := 20 * time.Minute

	entry := func(remoteID, signature string, sendAt time.Time) *models.NotificationLedger {
		return &models.NotificationLedger{RemoteScheduleID: remoteID, Signature: signature, SendAt: sendAt}
	}

	tests := []struct {
		name      string
		target    time.Time
		entry     *models.NotificationLedger
		signature string
		want      convergenceAction
	}{
		{
			name:   "window missed",
			target: now.Add(-time.Minute),
			want:   actionSkipWindowMissed,
		},
		{
			name:   "window missed at exact boundary",
			target: now,
			want:   actionSkipWindowMissed,
		},
		{
			name:      "no entry creates",
			target:    future,
			signature: "s1",
			want:      actionCreate,
		},
		{
			name:      "legacy remote id forces recreate",
			target:    future,
			entry:     entry("old-format-id", "s1", future),
			signature: "s1",
			want:      actionRecreateLegacy,
		},
		{
			name:      "signature match skips",
			target:    future,
			entry:     entry("cs_abc", "s1", future),
			signature: "s1",
			want:      actionSkipSignatureMatch,
		},
		{
			name:      "existing send instant inside buffer skips update",
			target:    future,
			entry:     entry("cs_abc", "s1", now.Add(10*time.Minute)),
			signature: "s2",
			want:      actionSkipUpdateBuffer,
		},
		{
			name:      "new target inside buffer skips update",
			target:    now.Add(15 * time.Minute),
			entry:     entry("cs_abc", "s1", future),
			signature: "s2",
			want:      actionSkipUpdateBuffer,
		},
		{
			name:      "differing signature outside buffer updates",
			target:    future,
			entry:     entry("cs_abc", "s1", future.Add(time.Hour)),
			signature: "s2",
			want:      actionUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideConvergence(now, tt.target, tt.entry, tt.signature, buffer)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Fakes. Embedding the interface keeps them small; unimplemented methods
// panic, which is exactly what a test reaching them should do.

type fakeLedgerRepo struct {
	repository.NotificationLedgerRepository
	active     *models.NotificationLedger
	reserveErr error
	reserved   *models.NotificationLedger
	promotedID string
	deletedIDs []uint
	updated    bool
}

func (f *fakeLedgerRepo) ActiveByFixtureID(ctx context.Context, fixtureID uint) (*models.NotificationLedger, error) {
	return f.active, nil
}

func (f *fakeLedgerRepo) Reserve(ctx context.Context, entry *models.NotificationLedger) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	entry.ID = 42
	f.reserved = entry
	return nil
}

func (f *fakeLedgerRepo) PromoteRemoteID(ctx context.Context, ledgerID uint, remoteID string) error {
	f.promotedID = remoteID
	return nil
}

func (f *fakeLedgerRepo) UpdateConvergence(ctx context.Context, ledgerID uint, signature string, sendAt time.Time, audienceKeys []string) error {
	f.updated = true
	return nil
}

func (f *fakeLedgerRepo) DeleteByID(ctx context.Context, ledgerID uint) error {
	f.deletedIDs = append(f.deletedIDs, ledgerID)
	return nil
}

type fakeOutcomeRepo struct {
	repository.RunOutcomeRepository
	saved []*models.RunOutcome
}

func (f *fakeOutcomeRepo) Save(ctx context.Context, outcome *models.RunOutcome) error {
	f.saved = append(f.saved, outcome)
	return nil
}

type fakeClient struct {
	createdID  string
	createErr  error
	updateErr  error
	creates    []CreateScheduleRequest
	updates    []CreateScheduleRequest
	deletedIDs []string
	schedules  []RemoteSchedule
}

func (f *fakeClient) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (string, error) {
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createdID, nil
}

func (f *fakeClient) UpdateSchedule(ctx context.Context, remoteID string, req CreateScheduleRequest) error {
	f.updates = append(f.updates, req)
	return f.updateErr
}

func (f *fakeClient) DeleteSchedule(ctx context.Context, remoteID string) error {
	f.deletedIDs = append(f.deletedIDs, remoteID)
	return nil
}

func (f *fakeClient) ListSchedules(ctx context.Context, endTime time.Time) ([]RemoteSchedule, error) {
	return f.schedules, nil
}

func (f *fakeClient) SendToRecipients(ctx context.Context, recipientIDs []string, payload SchedulePayload) (string, error) {
	return "disp_1", nil
}

type fakeAudience struct {
	attrs   map[string]string
	aliases []*models.ParticipantAlias
}

func (f *fakeAudience) NotableAttributes(ctx context.Context) (map[string]string, error) {
	return f.attrs, nil
}

func (f *fakeAudience) Aliases(ctx context.Context) ([]*models.ParticipantAlias, error) {
	return f.aliases, nil
}

func (f *fakeAudience) InvalidateCache(ctx context.Context) error { return nil }

type fakeLocalization struct {
	texts map[string]string
}

func (f *fakeLocalization) Resolve(ctx context.Context, name string) (string, bool, error) {
	text, ok := f.texts[name]
	return text, ok, nil
}

func (f *fakeLocalization) Persist(ctx context.Context, sourceName, localizedText, provenance string) error {
	return nil
}

func testScheduler(ledger *fakeLedgerRepo, client *fakeClient, audience *fakeAudience, localization *fakeLocalization) (*ConvergenceScheduler, *fakeOutcomeRepo) {
	outcomes := &fakeOutcomeRepo{}
	cfg := config.SchedulerConfig{
		Lookahead:    7 * 24 * time.Hour,
		LeadTime:     time.Hour,
		UpdateBuffer: 20 * time.Minute,
		LockTTL:      5 * time.Minute,
	}
	s := NewConvergenceScheduler(nil, ledger, outcomes, nil, audience, localization, client,
		cfg, "fixturecast", log.New(io.Discard, "", 0))
	return s, outcomes
}

func testFixture(kickoffAt time.Time) *models.Fixture {
	return &models.Fixture{
		ID:        7,
		HomeTeam:  "AFC Ajax",
		AwayTeam:  "Feyenoord",
		KickoffAt: kickoffAt,
		Status:    models.FixtureStatusScheduled,
	}
}

func testEnv() (*fakeAudience, *fakeLocalization) {
	audience := &fakeAudience{
		attrs: map[string]string{
			"Ajax":      "follows_ajax",
			"Feyenoord": "follows_feyenoord",
		},
		aliases: []*models.ParticipantAlias{
			{Pattern: "AFC Ajax*", CanonicalName: "Ajax"},
		},
	}
	localization := &fakeLocalization{texts: map[string]string{
		"Ajax":      "Ajax Amsterdam",
		"Feyenoord": "Feyenoord Rotterdam",
	}}
	return audience, localization
}

func TestConvergeFixtureCreatesSchedule(t *testing.T) {
	audience, localization := testEnv()
	ledger := &fakeLedgerRepo{}
	client := &fakeClient{createdID: "cs_new_1"}
	s, _ := testScheduler(ledger, client, audience, localization)

	fixture := testFixture(time.Now().UTC().Add(6 * time.Hour))
	outcome := s.convergeFixture(context.Background(), fixture, audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeCreated, outcome.Outcome)

	require.NotNil(t, ledger.reserved, "ledger row must be reserved before the remote call")
	assert.True(t, models.IsPlaceholderRemoteID(ledger.reserved.RemoteScheduleID))
	assert.Equal(t, "cs_new_1", ledger.promotedID)

	require.Len(t, client.creates, 1)
	req := client.creates[0]
	assert.ElementsMatch(t, []string{"follows_ajax", "follows_feyenoord"}, req.AudienceKeys)
	assert.Equal(t, uint(7), req.Payload.FixtureID)
	assert.Equal(t, "fixturecast", req.Payload.SourceTag)
	assert.NotEmpty(t, req.Payload.Signature)
}

func TestConvergeFixtureRollsBackReservationOnCreateFailure(t *testing.T) {
	audience, localization := testEnv()
	ledger := &fakeLedgerRepo{}
	client := &fakeClient{createErr: errors.New("platform unavailable")}
	s, _ := testScheduler(ledger, client, audience, localization)

	fixture := testFixture(time.Now().UTC().Add(6 * time.Hour))
	outcome := s.convergeFixture(context.Background(), fixture, audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeError, outcome.Outcome)
	assert.Equal(t, models.ReasonRemoteCreateFailed, outcome.Reason)
	assert.Equal(t, []uint{42}, ledger.deletedIDs, "reservation must be rolled back")
	assert.Empty(t, ledger.promotedID)
}

func TestConvergeFixtureReservationLost(t *testing.T) {
	audience, localization := testEnv()
	ledger := &fakeLedgerRepo{reserveErr: repository.ErrDuplicateActiveEntry}
	client := &fakeClient{createdID: "cs_new_1"}
	s, _ := testScheduler(ledger, client, audience, localization)

	fixture := testFixture(time.Now().UTC().Add(6 * time.Hour))
	outcome := s.convergeFixture(context.Background(), fixture, audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeSkipped, outcome.Outcome)
	assert.Equal(t, models.ReasonReservationLost, outcome.Reason)
	assert.Empty(t, client.creates, "no remote call after losing the reservation")
}

func TestConvergeFixtureSignatureMatchIsIdempotent(t *testing.T) {
	audience, localization := testEnv()
	kickoff := time.Now().UTC().Add(6 * time.Hour).Truncate(time.Second)
	target := kickoff.Add(-time.Hour)
	signature := ComputeSignature(target, []string{"follows_ajax", "follows_feyenoord"},
		"Ajax Amsterdam", "Feyenoord Rotterdam")

	ledger := &fakeLedgerRepo{active: &models.NotificationLedger{
		ID: 9, FixtureID: 7, RemoteScheduleID: "cs_abc", Signature: signature,
		SendAt: target, Status: models.LedgerStatusPending,
	}}
	client := &fakeClient{}
	s, _ := testScheduler(ledger, client, audience, localization)

	outcome := s.convergeFixture(context.Background(), testFixture(kickoff), audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeSkipped, outcome.Outcome)
	assert.Equal(t, models.ReasonSignatureMatch, outcome.Reason)
	assert.Empty(t, client.creates)
	assert.Empty(t, client.updates)
}

func TestConvergeFixtureUpdatesOnSignatureChange(t *testing.T) {
	audience, localization := testEnv()
	kickoff := time.Now().UTC().Add(6 * time.Hour)

	ledger := &fakeLedgerRepo{active: &models.NotificationLedger{
		ID: 9, FixtureID: 7, RemoteScheduleID: "cs_abc", Signature: "stale-signature",
		SendAt: kickoff.Add(-time.Hour), Status: models.LedgerStatusPending,
	}}
	client := &fakeClient{}
	s, _ := testScheduler(ledger, client, audience, localization)

	outcome := s.convergeFixture(context.Background(), testFixture(kickoff), audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeUpdated, outcome.Outcome)
	assert.Len(t, client.updates, 1)
	assert.True(t, ledger.updated, "ledger must record the new signature")
}

func TestConvergeFixtureLegacyRemoteIDForcesRecreate(t *testing.T) {
	audience, localization := testEnv()
	kickoff := time.Now().UTC().Add(6 * time.Hour)

	ledger := &fakeLedgerRepo{active: &models.NotificationLedger{
		ID: 9, FixtureID: 7, RemoteScheduleID: "legacy-123", Signature: "old",
		SendAt: kickoff.Add(-time.Hour), Status: models.LedgerStatusPending,
	}}
	client := &fakeClient{createdID: "cs_new_2"}
	s, _ := testScheduler(ledger, client, audience, localization)

	outcome := s.convergeFixture(context.Background(), testFixture(kickoff), audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeCreated, outcome.Outcome)
	assert.Equal(t, models.ReasonLegacyRemoteID, outcome.Reason)
	assert.Contains(t, ledger.deletedIDs, uint(9), "legacy entry must be removed")
	assert.Equal(t, "cs_new_2", ledger.promotedID)
	assert.Empty(t, client.updates, "legacy ids must never be updated in place")
}

func TestConvergeFixtureIgnoresNonNotable(t *testing.T) {
	audience, localization := testEnv()
	ledger := &fakeLedgerRepo{}
	client := &fakeClient{}
	s, _ := testScheduler(ledger, client, audience, localization)

	fixture := testFixture(time.Now().UTC().Add(6 * time.Hour))
	fixture.HomeTeam = "Unknown FC"
	fixture.AwayTeam = "Obscure United"

	outcome := s.convergeFixture(context.Background(), fixture, audience.attrs, audience.aliases)
	assert.Nil(t, outcome, "non-notable fixtures are out of scope")
	assert.Empty(t, client.creates)
}

func TestConvergeFixtureSkipsWhenTranslationMissing(t *testing.T) {
	audience, _ := testEnv()
	localization := &fakeLocalization{texts: map[string]string{"Ajax": "Ajax Amsterdam"}}
	ledger := &fakeLedgerRepo{}
	client := &fakeClient{}
	s, _ := testScheduler(ledger, client, audience, localization)

	outcome := s.convergeFixture(context.Background(), testFixture(time.Now().UTC().Add(6*time.Hour)),
		audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeSkipped, outcome.Outcome)
	assert.Equal(t, models.ReasonContentUnavailable, outcome.Reason)
	assert.Empty(t, client.creates, "no schedule without localized content")
}

func TestConvergeFixtureSkipsMissedWindow(t *testing.T) {
	audience, localization := testEnv()
	ledger := &fakeLedgerRepo{}
	client := &fakeClient{}
	s, _ := testScheduler(ledger, client, audience, localization)

	// Kickoff in 30 minutes with a 60 minute lead time: the send instant
	// is already in the past
	outcome := s.convergeFixture(context.Background(), testFixture(time.Now().UTC().Add(30*time.Minute)),
		audience.attrs, audience.aliases)

	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeSkipped, outcome.Outcome)
	assert.Equal(t, models.ReasonWindowMissed, outcome.Reason)
	assert.Empty(t, client.creates)
}
