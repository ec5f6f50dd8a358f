// Package apiclient talks to the portal's sync endpoints over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moussadar/moussadar/internal/offline/queue"
	"github.com/moussadar/moussadar/internal/portal/schema"
	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
)

// DefaultTimeout bounds every request unless configured otherwise.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// ErrNotSynced is returned by SubmitAction when the server recorded the
// action as failed.
var ErrNotSynced = errors.New("action was not synced")

// Client calls the portal API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL. A non-positive timeout
// uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope mirrors the server's response wrapper. Error is either a string
// or a {message, status} object.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(env.Error)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return "unknown error"
}

// Health checks GET /health. Any failure means the server is unreachable
// or unhealthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "healthy" {
		return &APIError{Status: resp.StatusCode, Message: "server is not healthy"}
	}
	return nil
}

// wireAction is a queued action as the server expects it, without the
// local queue id.
type wireAction struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// SubmitBatch posts actions for userID to /api/sync/offline.
func (c *Client) SubmitBatch(ctx context.Context, userID string, actions []queue.Action) (*portalsync.BatchResult, error) {
	body := struct {
		UserID  string       `json:"userId"`
		Actions []wireAction `json:"actions"`
	}{userID, make([]wireAction, 0, len(actions))}
	for _, a := range actions {
		body.Actions = append(body.Actions, wireAction{Type: a.Type, Data: a.Data, Timestamp: a.Timestamp})
	}

	var result portalsync.BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/sync/offline", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitAction submits a batch of one. It returns ErrNotSynced, wrapped
// with the server's reason, when the action was rejected.
func (c *Client) SubmitAction(ctx context.Context, userID string, action queue.Action) error {
	result, err := c.SubmitBatch(ctx, userID, []queue.Action{action})
	if err != nil {
		return err
	}
	if len(result.Actions) != 1 || !result.Actions[0].Synced {
		reason := "no result"
		if len(result.Actions) == 1 {
			reason = result.Actions[0].Error
		}
		return fmt.Errorf("%w: %s", ErrNotSynced, reason)
	}
	return nil
}

// Pending lists userID's unsynced server rows.
func (c *Client) Pending(ctx context.Context, userID string) ([]schema.PendingItem, error) {
	var items []schema.PendingItem
	if err := c.do(ctx, http.MethodGet, "/api/sync/pending/"+url.PathEscape(userID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkSynced flags server rows as synced and returns how many changed.
func (c *Client) MarkSynced(ctx context.Context, ids []int64) (int, error) {
	if ids == nil {
		ids = []int64{}
	}
	body := struct {
		ItemIDs []int64 `json:"itemIds"`
	}{ids}

	var out struct {
		UpdatedCount int `json:"updatedCount"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/sync/synced", body, &out); err != nil {
		return 0, err
	}
	return out.UpdatedCount, nil
}

// Stats fetches userID's queue statistics.
func (c *Client) Stats(ctx context.Context, userID string) (*portalsync.Stats, error) {
	var stats portalsync.Stats
	if err := c.do(ctx, http.MethodGet, "/api/sync/stats/"+url.PathEscape(userID), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
