package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
)

// BatchSubmittedData summarizes one processed offline batch
type BatchSubmittedData struct {
	UserID      string `json:"user_id"`
	SyncedCount int    `json:"synced_count"`
	FailedCount int    `json:"failed_count"`
}

// ItemsSyncedData summarizes one mark-synced call
type ItemsSyncedData struct {
	Requested int `json:"requested"`
	Updated   int `json:"updated"`
}

// SeedReloadedData describes a reference data reload
type SeedReloadedData struct {
	Files   []string `json:"files"`
	Records int      `json:"records"`
	Failed  int      `json:"failed"`
}

// StatsData contains the counters accumulated since startup
type StatsData struct {
	Batches        int       `json:"batches"`
	ActionsSynced  int       `json:"actions_synced"`
	ActionsFailed  int       `json:"actions_failed"`
	ItemsMarked    int       `json:"items_marked"`
	SeedReloads    int       `json:"seed_reloads"`
	Clients        int       `json:"clients"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
}

// Handler turns queue and seed events into feed messages.
// It implements sync.EventSink and is safe for concurrent use.
type Handler struct {
	hub    *Hub
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ portalsync.EventSink = (*Handler)(nil)

// NewHandler creates a handler bound to hub. New clients receive the
// current stats as their welcome message.
func NewHandler(hub *Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		hub:    hub,
		logger: logger,
		stats:  StatsData{StartedAt: time.Now().UTC()},
	}
	hub.SetWelcome(h.statsMessage)
	return h
}

// OnBatchSubmitted handles processed offline batches
func (h *Handler) OnBatchSubmitted(userID string, result *portalsync.BatchResult) {
	h.mu.Lock()
	h.stats.Batches++
	h.stats.ActionsSynced += result.SyncedCount
	h.stats.ActionsFailed += result.FailedCount
	h.stats.LastActivityAt = time.Now().UTC()
	h.mu.Unlock()

	h.send(MessageTypeBatchSubmitted, BatchSubmittedData{
		UserID:      userID,
		SyncedCount: result.SyncedCount,
		FailedCount: result.FailedCount,
	})
	h.broadcastStats()
}

// OnItemsSynced handles mark-synced calls
func (h *Handler) OnItemsSynced(requested, updated int) {
	h.mu.Lock()
	h.stats.ItemsMarked += updated
	h.stats.LastActivityAt = time.Now().UTC()
	h.mu.Unlock()

	h.send(MessageTypeItemsSynced, ItemsSyncedData{Requested: requested, Updated: updated})
	h.broadcastStats()
}

// OnSeedReloaded handles reference data reloads from the seed watcher
func (h *Handler) OnSeedReloaded(files []string, records, failed int) {
	h.logger.Printf("Seed reloaded: %d records from %d files (failed=%d)", records, len(files), failed)

	h.mu.Lock()
	h.stats.SeedReloads++
	h.mu.Unlock()

	h.send(MessageTypeSeedReloaded, SeedReloadedData{Files: files, Records: records, Failed: failed})
}

// GetStats returns a snapshot of the counters
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := h.stats
	stats.Clients = h.hub.ClientCount()
	return stats
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return Message{Type: MessageTypeStats}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now().UTC(), Data: data}
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.hub.Broadcast(h.statsMessage())
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.hub.Broadcast(Message{Type: typ, Timestamp: time.Now().UTC(), Data: data})
}
