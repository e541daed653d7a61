package models

import (
	"encoding/json"
	"time"

	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
)

// Resolution kinds recorded on delivery confirmations
const (
	ResolutionFixtureID     = "fixture_id"
	ResolutionCorrelationID = "correlation_id"
	ResolutionNearestTime   = "nearest_time"
	ResolutionUnlinked      = "unlinked"
)

// DeliveryConfirmation is the durable trace of one inbound delivery event.
// LedgerID is nil when the event could not be linked to any ledger entry.
type DeliveryConfirmation struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	EventType  string          `gorm:"size:64;not null" json:"event_type"`
	DispatchID *string         `gorm:"size:128;index:idx_delivery_confirmations_dispatch_id" json:"dispatch_id,omitempty"`
	SendID     *string         `gorm:"size:128;index:idx_delivery_confirmations_send_id" json:"send_id,omitempty"`
	EventAt    time.Time       `gorm:"not null;index:idx_delivery_confirmations_event_at" json:"event_at"`
	LedgerID   *uint           `gorm:"index:idx_delivery_confirmations_ledger_id" json:"ledger_id,omitempty"`
	Resolution string          `gorm:"size:32;not null" json:"resolution"`
	RawPayload json.RawMessage `gorm:"type:jsonb" json:"raw_payload,omitempty"`
	CreatedAt  time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`

	// Relations
	Ledger *NotificationLedger `gorm:"foreignKey:LedgerID;references:ID" json:"ledger,omitempty"`
}

// TableName returns the table name for the model
func (DeliveryConfirmation) TableName() string {
	return "delivery_confirmations"
}

// BeforeCreate is called before creating a new record
func (c *DeliveryConfirmation) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Linked reports whether the confirmation was resolved to a ledger entry
func (c *DeliveryConfirmation) Linked() bool {
	return c.LedgerID != nil
}
