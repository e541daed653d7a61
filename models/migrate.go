package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates all tables and the constraints gorm tags cannot
// express. The partial unique index is the uniqueness invariant of the ledger:
// at most one row per fixture while its status is non-terminal.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Fixture{},
		&NotificationLedger{},
		&ScheduleLock{},
		&DeliveryConfirmation{},
		&RunOutcome{},
		&NotableParticipant{},
		&ParticipantAlias{},
		&Translation{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uk_notification_ledger_fixture_active
		 ON notification_ledger (fixture_id)
		 WHERE status IN ('pending', 'sent')`,
	).Error; err != nil {
		return fmt.Errorf("create partial unique index failed: %w", err)
	}

	return nil
}
