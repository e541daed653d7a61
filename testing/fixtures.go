package testing

import (
	"fmt"
	"time"

	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/utils"
)

// CreateTestFixture inserts a fixture kicking off at the given instant
func (tdb *TestDB) CreateTestFixture(externalID, home, away string, kickoffAt time.Time) (*models.Fixture, error) {
	fixture := &models.Fixture{
		ExternalID:  externalID,
		HomeTeam:    home,
		AwayTeam:    away,
		KickoffAt:   kickoffAt.UTC(),
		Status:      models.FixtureStatusScheduled,
		Competition: "test_league",
	}
	if err := tdb.DB.Create(fixture).Error; err != nil {
		return nil, fmt.Errorf("failed to create test fixture: %w", err)
	}
	return fixture, nil
}

// CreateTestLedgerEntry inserts a ledger row in the given status
func (tdb *TestDB) CreateTestLedgerEntry(fixtureID uint, remoteID, signature string, sendAt time.Time, status models.LedgerStatus) (*models.NotificationLedger, error) {
	entry := &models.NotificationLedger{
		FixtureID:        fixtureID,
		RemoteScheduleID: remoteID,
		Signature:        signature,
		SendAt:           sendAt.UTC(),
		Status:           status,
		AudienceKeys:     []string{"follows_test_team"},
	}
	if err := tdb.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test ledger entry: %w", err)
	}
	return entry, nil
}

// CreateTestNotable inserts an active notable participant
func (tdb *TestDB) CreateTestNotable(canonicalName, audienceAttribute string) (*models.NotableParticipant, error) {
	participant := &models.NotableParticipant{
		CanonicalName:     canonicalName,
		AudienceAttribute: audienceAttribute,
		IsActive:          utils.ToPtr(true),
	}
	if err := tdb.DB.Create(participant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test notable participant: %w", err)
	}
	return participant, nil
}

// CreateTestAlias inserts one canonicalization pattern
func (tdb *TestDB) CreateTestAlias(pattern, canonicalName string) (*models.ParticipantAlias, error) {
	alias := &models.ParticipantAlias{
		Pattern:       pattern,
		CanonicalName: canonicalName,
	}
	if err := tdb.DB.Create(alias).Error; err != nil {
		return nil, fmt.Errorf("failed to create test alias: %w", err)
	}
	return alias, nil
}

// CreateTestTranslation inserts a localized name
func (tdb *TestDB) CreateTestTranslation(sourceName, localizedText string) (*models.Translation, error) {
	translation := &models.Translation{
		SourceName:    sourceName,
		LocalizedText: localizedText,
		Provenance:    "manual",
	}
	if err := tdb.DB.Create(translation).Error; err != nil {
		return nil, fmt.Errorf("failed to create test translation: %w", err)
	}
	return translation, nil
}
