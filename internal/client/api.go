package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Notification is the client-side view of a durable notification, as
// served by the notifications API.
type Notification struct {
	ID             string `json:"id"`
	AlertID        string `json:"alertId"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	AlertType      string `json:"alertType"`
	CropType       string `json:"cropType"`
	Location       string `json:"location"`
	PriceChangePct string `json:"priceChangePercent"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	Read           bool   `json:"-"`
}

// APIClient talks to the farmwatch notifications API on behalf of one
// authenticated user.
type APIClient struct {
	baseURL string
	userID  string
	client  *http.Client
}

// NewAPIClient constructs an API client.
func NewAPIClient(baseURL, userID string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		client:  &http.Client{Timeout: timeout},
	}
}

// Notifications fetches the caller's notifications, newest first.
func (c *APIClient) Notifications(ctx context.Context, status string, limit, offset int) ([]Notification, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var payload struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Notifications, nil
}

// MarkRead marks the owned subset of ids as read server-side and returns
// how many were updated.
func (c *APIClient) MarkRead(ctx context.Context, ids []string) (int64, error) {
	return c.batchUpdate(ctx, "/api/notifications/read", ids)
}

// Dismiss dismisses the owned subset of ids server-side.
func (c *APIClient) Dismiss(ctx context.Context, ids []string) (int64, error) {
	return c.batchUpdate(ctx, "/api/notifications/dismiss", ids)
}

func (c *APIClient) batchUpdate(ctx context.Context, path string, ids []string) (int64, error) {
	body := map[string][]string{"ids": ids}
	var payload struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return 0, err
	}
	return payload.Updated, nil
}

// CheckNow asks the server for an immediate evaluation pass.
func (c *APIClient) CheckNow(ctx context.Context) (int, error) {
	var payload struct {
		Fired int `json:"fired"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/alerts/check", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Fired, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-User-ID", c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(status int, payload []byte) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("api error (%d): %s", status, apiErr.Error)
	}
	if len(payload) > 0 {
		return fmt.Errorf("api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("api error (%d)", status)
}
