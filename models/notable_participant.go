package models

import (
	"time"

	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
)

// NotableParticipant gates which fixtures are eligible for notifications.
// AudienceAttribute is the remote platform attribute value selecting the
// subscribers of this participant.
type NotableParticipant struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CanonicalName     string    `gorm:"size:128;not null;uniqueIndex:uk_notable_participants_name" json:"canonical_name"`
	AudienceAttribute string    `gorm:"size:128;not null" json:"audience_attribute"`
	IsActive          *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

// TableName returns the table name for the model
func (NotableParticipant) TableName() string {
	return "notable_participants"
}

// BeforeCreate is called before creating a new record
func (p *NotableParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.IsActive == nil {
		p.IsActive = utils.ToPtr(true)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.UTCNow()
	}
	return nil
}
