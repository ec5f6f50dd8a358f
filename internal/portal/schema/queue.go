package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for every stored timestamp.
// Fixed width keeps lexical order equal to chronological order in SQL.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Well-known action types. The queue accepts any non-empty type; these are
// the ones the portal itself writes or the client knows how to process.
const (
	ActionSearch          = "SEARCH"
	ActionBookmark        = "BOOKMARK"
	ActionFeedback        = "FEEDBACK"
	ActionDocumentRequest = "DOCUMENT_REQUEST"
	ActionProcedureStart  = "PROCEDURE_START"
)

// Action is one client action as submitted for sync.
type Action struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Validate checks the fields an insert needs.
func (a *Action) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("action type is required")
	}
	if len(a.Data) > 0 && !json.Valid(a.Data) {
		return fmt.Errorf("action data is not valid JSON")
	}
	return nil
}

// StoredData returns the JSON text persisted in action_data. Absent data is
// stored as JSON null so the column always parses.
func (a *Action) StoredData() string {
	if len(a.Data) == 0 {
		return "null"
	}
	return string(a.Data)
}

// QueueItem is one row of the server-side offline queue.
type QueueItem struct {
	ID         int64           `json:"id"`
	UserID     string          `json:"user_id"`
	ActionType string          `json:"action_type"`
	ActionData json.RawMessage `json:"action_data"`
	Timestamp  time.Time       `json:"timestamp"`
	Synced     bool            `json:"synced"`
	SyncedAt   *time.Time      `json:"synced_at"`
}

// Validate enforces the row invariants: synced_at is set iff synced.
func (q *QueueItem) Validate() error {
	if q.ActionType == "" {
		return fmt.Errorf("action_type is required")
	}
	if len(q.ActionData) > 0 && !json.Valid(q.ActionData) {
		return fmt.Errorf("action_data is not valid JSON")
	}
	if q.Synced != (q.SyncedAt != nil) {
		return fmt.Errorf("synced_at must be set exactly when synced is true")
	}
	return nil
}

// PendingItem is the projection returned by the pending listing.
type PendingItem struct {
	ID         int64           `json:"id"`
	ActionType string          `json:"action_type"`
	ActionData json.RawMessage `json:"action_data"`
	Timestamp  string          `json:"timestamp"`
}

// QueueStats aggregates one user's queue.
type QueueStats struct {
	TotalItems   int     `json:"total_items"`
	SyncedItems  int     `json:"synced_items"`
	PendingItems int     `json:"pending_items"`
	OldestItem   *string `json:"oldest_item"`
	NewestItem   *string `json:"newest_item"`
}

// ActionCount is one row of the recent action-type histogram.
type ActionCount struct {
	ActionType string `json:"action_type"`
	Count      int    `json:"count"`
}
