package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "[test] ", log.LstdFlags)
}

// startHub serves a started hub over httptest and returns its ws URL.
func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(&Config{Logger: testLogger()})
	hub.Start()

	ts := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestWebSocketConnection(t *testing.T) {
	hub, url := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}

	if count := hub.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	hub, url := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, url)
		readMessage(t, ctx, conn)
	}

	if count := hub.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestMessageBroadcast(t *testing.T) {
	hub, url := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	readMessage(t, ctx, conn)

	data, _ := json.Marshal(ItemsSyncedData{Requested: 2, Updated: 1})
	hub.Broadcast(Message{Type: MessageTypeItemsSynced, Data: data})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeItemsSynced {
		t.Errorf("Expected message type %s, got %s", MessageTypeItemsSynced, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast loop should stamp messages")
	}

	var got ItemsSyncedData
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	if got.Updated != 1 || got.Requested != 2 {
		t.Errorf("data = %+v", got)
	}
}

func TestHandlerBatchEvents(t *testing.T) {
	hub, url := startHub(t)
	handler := NewHandler(hub, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	welcome := readMessage(t, ctx, conn)

	var initial StatsData
	if err := json.Unmarshal(welcome.Data, &initial); err != nil {
		t.Fatalf("Failed to unmarshal welcome stats: %v", err)
	}
	if initial.Clients != 1 {
		t.Errorf("welcome stats clients = %d, want 1", initial.Clients)
	}

	handler.OnBatchSubmitted("u1", &portalsync.BatchResult{SyncedCount: 2, FailedCount: 1})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeBatchSubmitted {
		t.Fatalf("Expected message type %s, got %s", MessageTypeBatchSubmitted, msg.Type)
	}
	var batch BatchSubmittedData
	if err := json.Unmarshal(msg.Data, &batch); err != nil {
		t.Fatalf("Failed to unmarshal batch data: %v", err)
	}
	if batch.UserID != "u1" || batch.SyncedCount != 2 || batch.FailedCount != 1 {
		t.Errorf("batch data = %+v", batch)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected message type %s, got %s", MessageTypeStats, msg.Type)
	}

	handler.OnItemsSynced(3, 2)
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeItemsSynced {
		t.Errorf("Expected message type %s, got %s", MessageTypeItemsSynced, msg.Type)
	}

	stats := handler.GetStats()
	if stats.Batches != 1 || stats.ActionsSynced != 2 || stats.ActionsFailed != 1 || stats.ItemsMarked != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandlerSeedReloaded(t *testing.T) {
	hub, url := startHub(t)
	handler := NewHandler(hub, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url)
	readMessage(t, ctx, conn)

	handler.OnSeedReloaded([]string{"services.yaml"}, 5, 0)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSeedReloaded {
		t.Fatalf("Expected message type %s, got %s", MessageTypeSeedReloaded, msg.Type)
	}
	var data SeedReloadedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal seed data: %v", err)
	}
	if data.Records != 5 || len(data.Files) != 1 {
		t.Errorf("seed data = %+v", data)
	}
	if handler.GetStats().SeedReloads != 1 {
		t.Error("SeedReloads should be 1")
	}
}

func TestBroadcastAfterStop(t *testing.T) {
	hub := NewHub(&Config{Logger: testLogger()})
	hub.Start()
	hub.Stop()

	// Must not block or panic
	hub.Broadcast(Message{Type: MessageTypeStats})
}
