package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeName(t *testing.T) {
	aliases := []*ParticipantAlias{
		{Pattern: "AFC Ajax*", CanonicalName: "Ajax"},
		{Pattern: "Man Utd", CanonicalName: "Manchester United"},
		{Pattern: "manchester united fc", CanonicalName: "Manchester United"},
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"wildcard prefix", "AFC Ajax Amsterdam", "Ajax"},
		{"wildcard exact prefix", "AFC Ajax", "Ajax"},
		{"exact match", "Man Utd", "Manchester United"},
		{"case insensitive", "MANCHESTER UNITED FC", "Manchester United"},
		{"surrounding whitespace", "  Man Utd  ", "Manchester United"},
		{"no alias falls back trimmed", "  Feyenoord ", "Feyenoord"},
		{"near miss stays raw", "Ajax", "Ajax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalizeName(tt.raw, aliases))
		})
	}
}

func TestAliasMatchesFirstWins(t *testing.T) {
	aliases := []*ParticipantAlias{
		{Pattern: "FC Barcelona B", CanonicalName: "Barcelona B"},
		{Pattern: "FC Barcelona*", CanonicalName: "Barcelona"},
	}
	assert.Equal(t, "Barcelona B", CanonicalizeName("FC Barcelona B", aliases))
	assert.Equal(t, "Barcelona", CanonicalizeName("FC Barcelona Femeni", aliases))
}

func TestRemoteIDClassification(t *testing.T) {
	placeholder := NewPlaceholderRemoteID()
	assert.True(t, IsPlaceholderRemoteID(placeholder))
	assert.False(t, IsLegacyRemoteID(placeholder))

	assert.False(t, IsPlaceholderRemoteID("cs_abc123"))
	assert.False(t, IsLegacyRemoteID("cs_abc123"))

	assert.True(t, IsLegacyRemoteID("9f3a-old-format"))
	assert.False(t, IsLegacyRemoteID(""))
}

func TestHasRealRemoteID(t *testing.T) {
	assert.True(t, (&NotificationLedger{RemoteScheduleID: "cs_abc"}).HasRealRemoteID())
	assert.False(t, (&NotificationLedger{RemoteScheduleID: NewPlaceholderRemoteID()}).HasRealRemoteID())
	assert.False(t, (&NotificationLedger{}).HasRealRemoteID())
	// Legacy ids are real as far as the remote platform is concerned
	assert.True(t, (&NotificationLedger{RemoteScheduleID: "old-format"}).HasRealRemoteID())
}

func TestLedgerStatus(t *testing.T) {
	assert.True(t, LedgerStatusPending.Valid())
	assert.True(t, LedgerStatusSent.Valid())
	assert.True(t, LedgerStatusCancelled.Valid())
	assert.False(t, LedgerStatus("bogus").Valid())

	assert.False(t, LedgerStatusPending.Terminal())
	assert.False(t, LedgerStatusSent.Terminal())
	assert.True(t, LedgerStatusCancelled.Terminal())
}

func TestLedgerStatusValueRejectsInvalid(t *testing.T) {
	_, err := LedgerStatus("bogus").Value()
	assert.Error(t, err)

	v, err := LedgerStatusSent.Value()
	assert.NoError(t, err)
	assert.Equal(t, "sent", v)
}

func TestFixtureStatusNotStarted(t *testing.T) {
	assert.True(t, FixtureStatusScheduled.NotStarted())
	assert.True(t, FixtureStatusTimed.NotStarted())
	assert.False(t, FixtureStatusInPlay.NotStarted())
	assert.False(t, FixtureStatusFinished.NotStarted())
	assert.False(t, FixtureStatusPostponed.NotStarted())
	assert.False(t, FixtureStatusCancelled.NotStarted())
}

func TestScheduleLockExpired(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	lock := &ScheduleLock{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, lock.Expired(now))
	assert.True(t, lock.Expired(now.Add(time.Minute)), "expiry instant itself is free for takeover")
	assert.True(t, lock.Expired(now.Add(2*time.Minute)))
}
