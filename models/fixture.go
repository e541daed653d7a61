package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// FixtureStatus represents the lifecycle status of a fixture as reported by the match-data feed
type FixtureStatus string

const (
	FixtureStatusScheduled FixtureStatus = "scheduled"
	FixtureStatusTimed     FixtureStatus = "timed"
	FixtureStatusInPlay    FixtureStatus = "in_play"
	FixtureStatusPaused    FixtureStatus = "paused"
	FixtureStatusFinished  FixtureStatus = "finished"
	FixtureStatusPostponed FixtureStatus = "postponed"
	FixtureStatusCancelled FixtureStatus = "cancelled"
)

// String returns the string representation of the status
func (s FixtureStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s FixtureStatus) Valid() bool {
	switch s {
	case FixtureStatusScheduled, FixtureStatusTimed, FixtureStatusInPlay,
		FixtureStatusPaused, FixtureStatusFinished, FixtureStatusPostponed,
		FixtureStatusCancelled:
		return true
	default:
		return false
	}
}

// NotStarted reports whether the fixture has not kicked off yet
func (s FixtureStatus) NotStarted() bool {
	return s == FixtureStatusScheduled || s == FixtureStatusTimed
}

// Scan implements the sql.Scanner interface for FixtureStatus
func (s *FixtureStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = FixtureStatus(v)
	case []byte:
		*s = FixtureStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into FixtureStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for FixtureStatus
func (s FixtureStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid FixtureStatus: %s", s)
	}
	return string(s), nil
}

// Fixture represents a scheduled sporting event supplied by the match-data feed.
// The core only reads this table; rows are written by the feed collaborator.
type Fixture struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	ExternalID  string        `gorm:"size:64;not null;uniqueIndex:uk_fixtures_external_id" json:"external_id"`
	HomeTeam    string        `gorm:"size:128;not null" json:"home_team"`
	AwayTeam    string        `gorm:"size:128;not null" json:"away_team"`
	KickoffAt   time.Time     `gorm:"not null;index:idx_fixtures_kickoff_at" json:"kickoff_at"`
	Status      FixtureStatus `gorm:"size:32;not null;default:'scheduled';index:idx_fixtures_status" json:"status"`
	Competition string        `gorm:"size:32;not null" json:"competition"`
	CreatedAt   time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

// TableName returns the table name for the model
func (Fixture) TableName() string {
	return "fixtures"
}

// FixtureFilter represents filter criteria for fixtures
type FixtureFilter struct {
	ID            *uint          `json:"id,omitempty"`
	ExternalID    *string        `json:"external_id,omitempty"`
	Status        *FixtureStatus `json:"status,omitempty"`
	Competition   *string        `json:"competition,omitempty"`
	KickoffAfter  *time.Time     `json:"kickoff_after,omitempty"`
	KickoffBefore *time.Time     `json:"kickoff_before,omitempty"`
	NotStarted    *bool          `json:"not_started,omitempty"`
}
