package models

import (
	"time"
)

// ScheduleLock is a time-boxed mutual-exclusion row guarding one logical run
// (convergence, reconciliation). Acquisition and release are conditional writes;
// an expired lock is available to any acquirer regardless of prior holder.
type ScheduleLock struct {
	Name       string    `gorm:"primaryKey;size:64" json:"name"`
	Holder     string    `gorm:"size:64;not null" json:"holder"`
	AcquiredAt time.Time `gorm:"not null" json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"not null;index:idx_schedule_locks_expires_at" json:"expires_at"`
}

// TableName returns the table name for the model
func (ScheduleLock) TableName() string {
	return "schedule_locks"
}

// Expired reports whether the lock is free for takeover at the given instant
func (l *ScheduleLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
