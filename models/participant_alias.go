package models

import (
	"strings"
	"time"
)

// ParticipantAlias maps one raw feed spelling to a canonical participant name.
// Patterns are matched case-insensitively; a trailing '*' matches any suffix.
type ParticipantAlias struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Pattern       string    `gorm:"size:128;not null;uniqueIndex:uk_participant_aliases_pattern" json:"pattern"`
	CanonicalName string    `gorm:"size:128;not null;index:idx_participant_aliases_canonical" json:"canonical_name"`
	CreatedAt     time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

// TableName returns the table name for the model
func (ParticipantAlias) TableName() string {
	return "participant_aliases"
}

// Matches reports whether the raw feed name matches this alias pattern
func (a *ParticipantAlias) Matches(raw string) bool {
	pattern := strings.ToLower(strings.TrimSpace(a.Pattern))
	name := strings.ToLower(strings.TrimSpace(raw))
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return name == pattern
}

// CanonicalizeName resolves a raw participant name against the alias table,
// falling back to the trimmed raw name when no alias matches. Pure; aliases are
// consulted in order so more specific patterns should be listed first.
func CanonicalizeName(raw string, aliases []*ParticipantAlias) string {
	for _, a := range aliases {
		if a.Matches(raw) {
			return a.CanonicalName
		}
	}
	return strings.TrimSpace(raw)
}
