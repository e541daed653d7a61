package dto

import "time"

// WebhookEventRequest is one delivery event in an inbound platform batch.
// DispatchID and SendID are the platform's correlation ids; FixtureID and
// Signature are echoed trigger properties and may be absent on older events.
type WebhookEventRequest struct {
	EventType  string    `json:"event_type" validate:"required,max=64"`
	DispatchID string    `json:"dispatch_id,omitempty" validate:"omitempty,max=128"`
	SendID     string    `json:"send_id,omitempty" validate:"omitempty,max=128"`
	FixtureID  uint      `json:"fixture_id,omitempty"`
	Signature  string    `json:"signature,omitempty" validate:"omitempty,max=64"`
	EventAt    time.Time `json:"event_at" validate:"required"`
}

// WebhookBatchRequest is the inbound webhook body
type WebhookBatchRequest struct {
	Events []WebhookEventRequest `json:"events" validate:"required,min=1,max=1000,dive"`
}

// WebhookBatchResponse summarizes how one batch was correlated
type WebhookBatchResponse struct {
	Received     int            `json:"received"`
	Linked       int            `json:"linked"`
	Unlinked     int            `json:"unlinked"`
	ByResolution map[string]int `json:"by_resolution"`
}
