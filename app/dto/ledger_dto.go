package dto

import "time"

// LedgerEntryResponse is one ledger row in API responses
type LedgerEntryResponse struct {
	ID               uint      `json:"id"`
	UUID             string    `json:"uuid"`
	FixtureID        uint      `json:"fixture_id"`
	RemoteScheduleID string    `json:"remote_schedule_id"`
	Signature        string    `json:"signature"`
	SendAt           time.Time `json:"send_at"`
	Status           string    `json:"status"`
	AudienceKeys     []string  `json:"audience_keys"`
	RemoteDispatchID *string   `json:"remote_dispatch_id,omitempty"`
	RemoteSendID     *string   `json:"remote_send_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// LedgerListRequest filters the ledger listing
type LedgerListRequest struct {
	FixtureID  *uint      `json:"fixture_id,omitempty" query:"fixture_id"`
	Status     *string    `json:"status,omitempty" query:"status" validate:"omitempty,oneof=pending sent cancelled"`
	SendAfter  *time.Time `json:"send_after,omitempty" query:"send_after"`
	SendBefore *time.Time `json:"send_before,omitempty" query:"send_before"`
	Page       int        `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize   int        `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=100"`
}

// LedgerListResponse is a page of ledger rows
type LedgerListResponse struct {
	Items    []LedgerEntryResponse `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// LedgerResetResponse reports what a manual reset did
type LedgerResetResponse struct {
	FixtureID       uint   `json:"fixture_id"`
	DeletedLedgerID uint   `json:"deleted_ledger_id"`
	RemoteCancelled bool   `json:"remote_cancelled"`
	Outcome         string `json:"outcome,omitempty"`
}
