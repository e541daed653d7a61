package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
)

// LedgerStatus represents the lifecycle status of a ledger entry
type LedgerStatus string

const (
	LedgerStatusPending   LedgerStatus = "pending"
	LedgerStatusSent      LedgerStatus = "sent"
	LedgerStatusCancelled LedgerStatus = "cancelled"
)

// String returns the string representation of the status
func (s LedgerStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s LedgerStatus) Valid() bool {
	switch s {
	case LedgerStatusPending, LedgerStatusSent, LedgerStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status releases the per-fixture uniqueness constraint
func (s LedgerStatus) Terminal() bool {
	return s == LedgerStatusCancelled
}

// Scan implements the sql.Scanner interface for LedgerStatus
func (s *LedgerStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = LedgerStatus(v)
	case []byte:
		*s = LedgerStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into LedgerStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for LedgerStatus
func (s LedgerStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid LedgerStatus: %s", s)
	}
	return string(s), nil
}

// Remote schedule id formats. Placeholder ids are written during the reservation
// phase and promoted after the remote create succeeds. Ids without the current
// platform prefix are a legacy format the platform rejects for updates.
const (
	RemoteIDPrefix            = "cs_"
	RemoteIDPlaceholderPrefix = "pending_"
)

// NewPlaceholderRemoteID returns a temporary remote id for the reservation phase
func NewPlaceholderRemoteID() string {
	return RemoteIDPlaceholderPrefix + uuid.NewString()
}

// IsPlaceholderRemoteID reports whether the id is a local reservation placeholder
func IsPlaceholderRemoteID(id string) bool {
	return strings.HasPrefix(id, RemoteIDPlaceholderPrefix)
}

// IsLegacyRemoteID reports whether the id uses the deprecated platform format
// that the platform no longer accepts for updates
func IsLegacyRemoteID(id string) bool {
	return id != "" && !strings.HasPrefix(id, RemoteIDPrefix) && !IsPlaceholderRemoteID(id)
}

// NotificationLedger is the durable record of desired/observed remote schedule
// state, one non-terminal row per fixture. Uniqueness is enforced by a partial
// unique index over status in ('pending','sent'); see Migrate.
type NotificationLedger struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_notification_ledger_uuid" json:"uuid"`
	FixtureID        uint           `gorm:"not null;index:idx_notification_ledger_fixture_id" json:"fixture_id"`
	RemoteScheduleID string         `gorm:"size:128;not null;index:idx_notification_ledger_remote_id" json:"remote_schedule_id"`
	Signature        string         `gorm:"size:64;not null" json:"signature"`
	SendAt           time.Time      `gorm:"not null;index:idx_notification_ledger_send_at" json:"send_at"`
	Status           LedgerStatus   `gorm:"size:16;not null;default:'pending';index:idx_notification_ledger_status" json:"status"`
	AudienceKeys     pq.StringArray `gorm:"type:text[];not null" json:"audience_keys"`
	RemoteDispatchID *string        `gorm:"size:128;index:idx_notification_ledger_dispatch_id" json:"remote_dispatch_id,omitempty"`
	RemoteSendID     *string        `gorm:"size:128;index:idx_notification_ledger_send_id" json:"remote_send_id,omitempty"`
	CreatedAt        time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`

	// Relations
	Fixture *Fixture `gorm:"foreignKey:FixtureID;references:ID" json:"fixture,omitempty"`
}

// TableName returns the table name for the model
func (NotificationLedger) TableName() string {
	return "notification_ledger"
}

// BeforeCreate is called before creating a new record
func (l *NotificationLedger) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.Status == "" {
		l.Status = LedgerStatusPending
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (l *NotificationLedger) BeforeUpdate(tx *gorm.DB) error {
	l.UpdatedAt = utils.UTCNow()
	return nil
}

// HasRealRemoteID reports whether the entry was promoted past the reservation phase
func (l *NotificationLedger) HasRealRemoteID() bool {
	return l.RemoteScheduleID != "" && !IsPlaceholderRemoteID(l.RemoteScheduleID)
}

// NotificationLedgerFilter represents filter criteria for ledger entries
type NotificationLedgerFilter struct {
	ID               *uint         `json:"id,omitempty"`
	UUID             *uuid.UUID    `json:"uuid,omitempty"`
	FixtureID        *uint         `json:"fixture_id,omitempty"`
	RemoteScheduleID *string       `json:"remote_schedule_id,omitempty"`
	Status           *LedgerStatus `json:"status,omitempty"`
	SendAfter        *time.Time    `json:"send_after,omitempty"`
	SendBefore       *time.Time    `json:"send_before,omitempty"`
}
