package models

import (
	"encoding/json"
	"time"

	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
)

// Outcome codes emitted by the scheduler units. Alert codes are outcomes the
// admin dashboard surfaces on dedicated panels.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"

	AlertMissingRemote   = "missing_remote"
	AlertStalePending    = "stale_pending"
	AlertMissingSchedule = "missing_schedule"
)

// Reason codes attached to outcomes
const (
	ReasonConverged          = "converged"
	ReasonWindowMissed       = "window_missed"
	ReasonContentUnavailable = "content_unavailable"
	ReasonSignatureMatch     = "signature_match"
	ReasonUpdateBuffer       = "update_buffer"
	ReasonReservationLost    = "reservation_lost"
	ReasonLegacyRemoteID     = "legacy_remote_id"
	ReasonRemoteCreateFailed = "remote_create_failed"
	ReasonRemoteUpdateFailed = "remote_update_failed"
	ReasonStoreFailure       = "store_failure"
	ReasonLockContention     = "lock_contention"
	ReasonCancelledStale     = "cancelled_stale"
	ReasonCancelledOrphan    = "cancelled_orphan"
	ReasonCancelledDuplicate = "cancelled_duplicate"
	ReasonMarkedSent         = "marked_sent"
	ReasonPurgedRetention    = "purged_retention"
	ReasonAutoRepair         = "auto_repair"
)

// RunOutcome is one append-only structured record per fixture per run branch,
// consumed by dashboards and by the Verifier
type RunOutcome struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	RunName   string          `gorm:"size:64;not null;index:idx_run_outcomes_run_name" json:"run_name"`
	FixtureID *uint           `gorm:"index:idx_run_outcomes_fixture_id" json:"fixture_id,omitempty"`
	Outcome   string          `gorm:"size:32;not null;index:idx_run_outcomes_outcome" json:"outcome"`
	Reason    string          `gorm:"size:64;not null" json:"reason"`
	Detail    json.RawMessage `gorm:"type:jsonb" json:"detail,omitempty"`
	CreatedAt time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_run_outcomes_created_at" json:"created_at"`
}

// TableName returns the table name for the model
func (RunOutcome) TableName() string {
	return "run_outcomes"
}

// BeforeCreate is called before creating a new record
func (o *RunOutcome) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = utils.UTCNow()
	}
	return nil
}

// IsAlert reports whether the outcome belongs to an alert class
func (o *RunOutcome) IsAlert() bool {
	switch o.Outcome {
	case AlertMissingRemote, AlertStalePending, AlertMissingSchedule:
		return true
	default:
		return false
	}
}

// RunOutcomeFilter represents filter criteria for run outcomes
type RunOutcomeFilter struct {
	RunName       *string    `json:"run_name,omitempty"`
	FixtureID     *uint      `json:"fixture_id,omitempty"`
	Outcome       *string    `json:"outcome,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
