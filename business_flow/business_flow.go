package businessflow

import (
	"github.com/matchops/fixturecast/app/dto"
	"github.com/matchops/fixturecast/app/scheduler"
	"github.com/matchops/fixturecast/models"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// ToLedgerEntryDTO converts a ledger model to its API representation
func ToLedgerEntryDTO(entry *models.NotificationLedger) dto.LedgerEntryResponse {
	return dto.LedgerEntryResponse{
		ID:               entry.ID,
		UUID:             entry.UUID.String(),
		FixtureID:        entry.FixtureID,
		RemoteScheduleID: entry.RemoteScheduleID,
		Signature:        entry.Signature,
		SendAt:           entry.SendAt,
		Status:           entry.Status.String(),
		AudienceKeys:     entry.AudienceKeys,
		RemoteDispatchID: entry.RemoteDispatchID,
		RemoteSendID:     entry.RemoteSendID,
		CreatedAt:        entry.CreatedAt,
		UpdatedAt:        entry.UpdatedAt,
	}
}

// ToRunSummaryDTO converts a run summary to its API representation
func ToRunSummaryDTO(summary *scheduler.RunSummary) dto.RunSummaryResponse {
	return dto.RunSummaryResponse{
		RunName:      summary.RunName,
		StartedAt:    summary.StartedAt,
		FinishedAt:   summary.FinishedAt,
		LockAcquired: summary.LockAcquired,
		Created:      summary.Created,
		Updated:      summary.Updated,
		Skipped:      summary.Skipped,
		Cancelled:    summary.Cancelled,
		Errors:       summary.Errors,
		Alerts:       summary.Alerts,
	}
}

func normalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return page, pageSize
}
