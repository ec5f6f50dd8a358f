package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// RecentWindow is how far back Stats looks for the action-type histogram.
const RecentWindow = 7 * 24 * time.Hour

// Config holds optional collaborators for the service.
type Config struct {
	// Logger for batch and sync activity
	Logger *log.Logger

	// Events receives queue mutation callbacks (optional)
	Events EventSink
}

// DefaultConfig returns a config logging to stderr with no event sink.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// service implements the Service interface.
type service struct {
	db     *db.DB
	logger *log.Logger
	events EventSink
}

// New creates a Service on top of an initialized database.
//
// If cfg is nil, DefaultConfig() is used.
//
// Example:
//
//	database, err := db.Open("data/moussadar.db")
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	svc := sync.New(database, nil)
func New(database *db.DB, cfg *Config) Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	return &service{
		db:     database,
		logger: logger,
		events: cfg.Events,
	}
}

// SubmitBatch implements Service.SubmitBatch.
func (s *service) SubmitBatch(ctx context.Context, userID string, actions []json.RawMessage) (*BatchResult, error) {
	if userID == "" {
		return nil, ErrInvalidBatch
	}

	result := &BatchResult{Actions: make([]ActionResult, 0, len(actions))}
	for _, raw := range actions {
		r := s.submitOne(ctx, userID, raw)
		if r.Synced {
			result.SyncedCount++
		} else {
			result.FailedCount++
			s.logger.Printf("WARNING: Failed to sync action for %s: %s", userID, r.Error)
		}
		result.Actions = append(result.Actions, r)
	}

	s.logger.Printf("Batch from %s: synced=%d failed=%d", userID, result.SyncedCount, result.FailedCount)
	if s.events != nil {
		s.events.OnBatchSubmitted(userID, result)
	}
	return result, nil
}

// submitOne inserts a single raw action. Every failure is captured in the
// result rather than returned.
func (s *service) submitOne(ctx context.Context, userID string, raw json.RawMessage) ActionResult {
	r := ActionResult{OriginalAction: raw}
	if len(raw) == 0 {
		r.OriginalAction = json.RawMessage("null")
	}

	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		r.Error = "action must be a JSON object"
		return r
	}

	var action schema.Action
	if err := json.Unmarshal(raw, &action); err != nil {
		r.Error = fmt.Sprintf("invalid action: %v", err)
		return r
	}

	item, err := s.db.InsertQueueItem(ctx, userID, &action)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	r.Synced = true
	r.ID = item.ID
	r.Timestamp = schema.FormatTime(item.Timestamp)
	return r
}

// ListPending implements Service.ListPending.
func (s *service) ListPending(ctx context.Context, userID string) ([]schema.PendingItem, error) {
	items, err := s.db.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

// MarkSynced implements Service.MarkSynced.
func (s *service) MarkSynced(ctx context.Context, ids []int64) (int, error) {
	updated, err := s.db.MarkSynced(ctx, ids)
	if err != nil {
		return updated, fmt.Errorf("failed to mark items as synced: %w", err)
	}

	s.logger.Printf("Marked %d of %d items as synced", updated, len(ids))
	if s.events != nil {
		s.events.OnItemsSynced(len(ids), updated)
	}
	return updated, nil
}

// Stats implements Service.Stats.
func (s *service) Stats(ctx context.Context, userID string) (*Stats, error) {
	qs, err := s.db.QueueStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	since := s.db.Now().Add(-RecentWindow)
	recent, err := s.db.RecentActionCounts(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent actions: %w", err)
	}

	return &Stats{
		Stats:         *qs,
		RecentActions: recent,
		SyncRate:      SyncRate(qs.SyncedItems, qs.TotalItems),
	}, nil
}

// RequestDocument implements Service.RequestDocument.
func (s *service) RequestDocument(ctx context.Context, req DocumentRequest) (string, error) {
	if req.DocumentID == "" || req.UserID == "" || isEmptyJSON(req.Data) {
		return "", ErrMissingFields
	}

	now := s.db.Now()
	requestID := newID("REQ", now)
	data, err := json.Marshal(struct {
		RequestID  string          `json:"requestId"`
		DocumentID string          `json:"documentId"`
		Data       json.RawMessage `json:"data"`
		Timestamp  string          `json:"timestamp"`
	}{requestID, req.DocumentID, req.Data, schema.FormatTime(now)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal document request: %w", err)
	}

	action := &schema.Action{Type: schema.ActionDocumentRequest, Data: data}
	if _, err := s.db.InsertQueueItem(ctx, string(req.UserID), action); err != nil {
		return "", fmt.Errorf("failed to record document request: %w", err)
	}

	s.logger.Printf("Document request %s for %s by %s", requestID, req.DocumentID, req.UserID)
	return requestID, nil
}

// StartProcedure implements Service.StartProcedure.
func (s *service) StartProcedure(ctx context.Context, req ProcedureStart) (string, error) {
	if req.ProcedureID == "" || req.UserID == "" {
		return "", ErrMissingFields
	}

	payload := req.Data
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	now := s.db.Now()
	sessionID := newID("SESSION", now)
	data, err := json.Marshal(struct {
		SessionID   string          `json:"sessionId"`
		ProcedureID string          `json:"procedureId"`
		Data        json.RawMessage `json:"data"`
		Timestamp   string          `json:"timestamp"`
		CurrentStep int             `json:"currentStep"`
		Status      string          `json:"status"`
	}{sessionID, req.ProcedureID, payload, schema.FormatTime(now), 0, "started"})
	if err != nil {
		return "", fmt.Errorf("failed to marshal procedure session: %w", err)
	}

	action := &schema.Action{Type: schema.ActionProcedureStart, Data: data}
	if _, err := s.db.InsertQueueItem(ctx, string(req.UserID), action); err != nil {
		return "", fmt.Errorf("failed to record procedure start: %w", err)
	}

	s.logger.Printf("Procedure session %s started for %s by %s", sessionID, req.ProcedureID, req.UserID)
	return sessionID, nil
}

// UpdateProgress implements Service.UpdateProgress.
func (s *service) UpdateProgress(ctx context.Context, sessionID string, p db.ProcedureProgress) error {
	return s.db.UpdateProcedureProgress(ctx, sessionID, p)
}

// newID builds "<prefix>-<unix ms>-<9 random chars>".
func newID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}
