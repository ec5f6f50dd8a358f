// Package dashboard provides the live sync feed for the portal.
//
// The hub keeps a set of WebSocket clients and fans out queue events
// (batches submitted, items synced, seed reloads) together with running
// statistics. It is mounted on the API router at /ws.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of feed message
type MessageType string

const (
	// MessageTypeBatchSubmitted indicates an offline batch was processed
	MessageTypeBatchSubmitted MessageType = "batch_submitted"

	// MessageTypeItemsSynced indicates queue items were marked as synced
	MessageTypeItemsSynced MessageType = "items_synced"

	// MessageTypeSeedReloaded indicates reference data was re-upserted
	MessageTypeSeedReloaded MessageType = "seed_reloaded"

	// MessageTypeStats carries the running counters
	MessageTypeStats MessageType = "stats"
)

// Message represents a feed broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Hub manages WebSocket connections and broadcasts feed messages
type Hub struct {
	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// welcome builds the first message each new client receives
	welcome   func() Message
	welcomeMu sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Logging
	logger *log.Logger

	originPatterns []string
}

// Config holds hub configuration
type Config struct {
	// OriginPatterns accepted on upgrade (default: all)
	OriginPatterns []string

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OriginPatterns: []string{"*"},
		Logger:         log.Default(),
	}
}

// NewHub creates a new feed hub. Call Start before serving clients.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if len(config.OriginPatterns) == 0 {
		config.OriginPatterns = []string{"*"}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:        make(map[*websocket.Conn]bool),
		broadcast:      make(chan Message, 100),
		welcome:        func() Message { return Message{Type: MessageTypeStats} },
		ctx:            ctx,
		cancel:         cancel,
		logger:         config.Logger,
		originPatterns: config.OriginPatterns,
	}
}

// SetWelcome replaces the builder of the greeting sent on connect.
func (h *Hub) SetWelcome(fn func() Message) {
	h.welcomeMu.Lock()
	h.welcome = fn
	h.welcomeMu.Unlock()
}

// Start launches the broadcast loop
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and waits for the broadcast loop to exit
func (h *Hub) Stop() {
	h.logger.Println("Stopping sync feed")

	// Signal shutdown
	h.cancel()

	// Close all WebSocket connections
	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
	h.logger.Println("Sync feed stopped")
}

// Broadcast queues a message for all connected clients. Messages are
// dropped when the queue is full or the hub is stopped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case <-h.ctx.Done():
		return
	default:
	}

	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop handles message broadcasting to all clients
func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			// Write outside the lock so one slow client cannot block registration
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket feed connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Client connected (total: %d)", clientCount)

	h.welcomeMu.RLock()
	welcome := h.welcome()
	h.welcomeMu.RUnlock()
	if welcome.Timestamp.IsZero() {
		welcome.Timestamp = time.Now().UTC()
	}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go h.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		// Client messages are ignored
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		h.clientsMu.Unlock()
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
