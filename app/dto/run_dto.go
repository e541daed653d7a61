package dto

import "time"

// RunSummaryResponse mirrors one scheduler unit run for the admin API
type RunSummaryResponse struct {
	RunName      string    `json:"run_name"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	LockAcquired bool      `json:"lock_acquired"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	Cancelled    int       `json:"cancelled"`
	Errors       int       `json:"errors"`
	Alerts       int       `json:"alerts"`
}

// OutcomeListRequest filters the outcome log
type OutcomeListRequest struct {
	RunName       *string    `json:"run_name,omitempty" query:"run_name"`
	FixtureID     *uint      `json:"fixture_id,omitempty" query:"fixture_id"`
	Outcome       *string    `json:"outcome,omitempty" query:"outcome"`
	CreatedAfter  *time.Time `json:"created_after,omitempty" query:"created_after"`
	CreatedBefore *time.Time `json:"created_before,omitempty" query:"created_before"`
	Page          int        `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize      int        `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=100"`
}

// OutcomeResponse is one outcome record in API responses
type OutcomeResponse struct {
	ID        uint      `json:"id"`
	RunName   string    `json:"run_name"`
	FixtureID *uint     `json:"fixture_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason"`
	Detail    any       `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeListResponse is a page of outcome records
type OutcomeListResponse struct {
	Items    []OutcomeResponse `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// AdHocSendRequest delivers a message to explicit recipients immediately
type AdHocSendRequest struct {
	RecipientIDs []string `json:"recipient_ids" validate:"required,min=1,max=500,dive,max=128"`
	Title        string   `json:"title" validate:"required,max=256"`
	Body         string   `json:"body" validate:"required,max=1024"`
}

// AdHocSendResponse reports the platform dispatch id of an ad hoc send
type AdHocSendResponse struct {
	DispatchID string `json:"dispatch_id"`
	Recipients int    `json:"recipients"`
}

// TranslationUpsertRequest stores or replaces a localized participant name
type TranslationUpsertRequest struct {
	SourceName    string `json:"source_name" validate:"required,max=128"`
	LocalizedText string `json:"localized_text" validate:"required,max=256"`
	Provenance    string `json:"provenance,omitempty" validate:"omitempty,oneof=manual imported machine"`
}
