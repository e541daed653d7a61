package models

import (
	"time"

	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
)

// Translation stores a localized rendering of a participant name. Rows are
// written by the localization collaborator; the core only reads them and skips
// fixtures whose names have no translation yet.
type Translation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SourceName    string    `gorm:"size:128;not null;uniqueIndex:uk_translations_source_name" json:"source_name"`
	LocalizedText string    `gorm:"size:256;not null" json:"localized_text"`
	Provenance    string    `gorm:"size:32;not null;default:'manual'" json:"provenance"`
	CreatedAt     time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

// TableName returns the table name for the model
func (Translation) TableName() string {
	return "translations"
}

// BeforeCreate is called before creating a new record
func (t *Translation) BeforeCreate(tx *gorm.DB) error {
	if t.Provenance == "" {
		t.Provenance = "manual"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	return nil
}
