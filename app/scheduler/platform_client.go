package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matchops/fixturecast/config"
)

// SchedulePayload is the trigger payload attached to every remote schedule this
// system creates. The platform treats it as opaque; the Reconciler reads the
// source tag, fixture id and signature back out of remote listings.
type SchedulePayload struct {
	SourceTag string `json:"source_tag"`
	FixtureID uint   `json:"fixture_id"`
	Signature string `json:"signature"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// RemoteSchedule is the observed state of one remote schedule object
type RemoteSchedule struct {
	RemoteID   string
	NextSendAt time.Time
	Payload    SchedulePayload
}

// CreateScheduleRequest carries everything the platform needs for one schedule
type CreateScheduleRequest struct {
	AudienceKeys []string
	SendAt       time.Time
	Payload      SchedulePayload
}

// PlatformClient wraps the external campaign-delivery platform's schedule API.
// The platform is an unreliable remote store: every call is bounded by the
// configured timeout and callers must treat failures as retryable next run.
type PlatformClient interface {
	CreateSchedule(ctx context.Context, req CreateScheduleRequest) (string, error)
	UpdateSchedule(ctx context.Context, remoteID string, req CreateScheduleRequest) error
	DeleteSchedule(ctx context.Context, remoteID string) error
	ListSchedules(ctx context.Context, endTime time.Time) ([]RemoteSchedule, error)
	SendToRecipients(ctx context.Context, recipientIDs []string, payload SchedulePayload) (string, error)
}

// HTTPPlatformClient implements PlatformClient against the platform's REST API
type HTTPPlatformClient struct {
	cfg    config.PlatformConfig
	client *http.Client
}

func NewHTTPPlatformClient(cfg config.PlatformConfig) *HTTPPlatformClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPlatformClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type scheduleRequestBody struct {
	Audience struct {
		Attributes []string `json:"attributes"`
	} `json:"audience"`
	SendAt  string          `json:"send_at"`
	Trigger SchedulePayload `json:"trigger"`
}

type scheduleResponseBody struct {
	ScheduleID string `json:"schedule_id"`
}

type listSchedulesResponseBody struct {
	Schedules []struct {
		ScheduleID string          `json:"schedule_id"`
		NextSendAt time.Time       `json:"next_send_at"`
		Trigger    SchedulePayload `json:"trigger"`
	} `json:"schedules"`
}

func (c *HTTPPlatformClient) buildScheduleBody(req CreateScheduleRequest) scheduleRequestBody {
	var body scheduleRequestBody
	body.Audience.Attributes = req.AudienceKeys
	body.SendAt = req.SendAt.UTC().Format(time.RFC3339)
	body.Trigger = req.Payload
	return body
}

func (c *HTTPPlatformClient) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (string, error) {
	payload, _ := json.Marshal(c.buildScheduleBody(req))
	url := fmt.Sprintf("%s/api/v1/apps/%s/schedules", c.cfg.APIDomain, c.cfg.AppID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create schedule http status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var out scheduleResponseBody
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode create schedule response: %w", err)
	}
	if out.ScheduleID == "" {
		return "", fmt.Errorf("empty schedule id in create response")
	}
	return out.ScheduleID, nil
}

func (c *HTTPPlatformClient) UpdateSchedule(ctx context.Context, remoteID string, req CreateScheduleRequest) error {
	payload, _ := json.Marshal(c.buildScheduleBody(req))
	url := fmt.Sprintf("%s/api/v1/apps/%s/schedules/%s", c.cfg.APIDomain, c.cfg.AppID, remoteID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("update schedule http status: %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPPlatformClient) DeleteSchedule(ctx context.Context, remoteID string) error {
	url := fmt.Sprintf("%s/api/v1/apps/%s/schedules/%s", c.cfg.APIDomain, c.cfg.AppID, remoteID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete schedule http status: %d", resp.StatusCode)
	}
	return nil
}

// ListSchedules returns every remote schedule whose next send instant is before
// endTime. The platform's view is never authoritative; callers diff it against
// the ledger.
func (c *HTTPPlatformClient) ListSchedules(ctx context.Context, endTime time.Time) ([]RemoteSchedule, error) {
	base := fmt.Sprintf("%s/api/v1/apps/%s/schedules", c.cfg.APIDomain, c.cfg.AppID)
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("end_time", endTime.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list schedules http status: %d", resp.StatusCode)
	}

	var out listSchedulesResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode list schedules response: %w", err)
	}

	schedules := make([]RemoteSchedule, 0, len(out.Schedules))
	for _, s := range out.Schedules {
		schedules = append(schedules, RemoteSchedule{
			RemoteID:   s.ScheduleID,
			NextSendAt: s.NextSendAt,
			Payload:    s.Trigger,
		})
	}
	return schedules, nil
}

// SendToRecipients delivers an ad hoc message immediately, bypassing schedules
func (c *HTTPPlatformClient) SendToRecipients(ctx context.Context, recipientIDs []string, payload SchedulePayload) (string, error) {
	body := struct {
		RecipientIDs []string        `json:"recipient_ids"`
		Trigger      SchedulePayload `json:"trigger"`
	}{RecipientIDs: recipientIDs, Trigger: payload}

	b, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/api/v1/apps/%s/messages", c.cfg.APIDomain, c.cfg.AppID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("send to recipients http status: %d", resp.StatusCode)
	}

	var out struct {
		DispatchID string `json:"dispatch_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}
	return out.DispatchID, nil
}
