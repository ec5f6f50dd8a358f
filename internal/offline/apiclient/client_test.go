package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moussadar/moussadar/internal/offline/driver"
	"github.com/moussadar/moussadar/internal/offline/queue"
	"github.com/moussadar/moussadar/internal/portal/api"
	"github.com/moussadar/moussadar/internal/portal/chat"
	"github.com/moussadar/moussadar/internal/portal/db"
	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newServer runs the real API over a fresh database.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.InitSchema())

	responder, err := chat.New(database, &chat.Config{Logger: quietLogger()})
	require.NoError(t, err)

	cfg := api.DefaultConfig()
	cfg.APIPerWindow = 0
	cfg.AIPerWindow = 0
	cfg.Logger = quietLogger()

	server := api.New(api.Deps{
		DB:   database,
		Sync: portalsync.New(database, &portalsync.Config{Logger: quietLogger()}),
		Chat: responder,
	}, cfg)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func action(typ, data string) queue.Action {
	return queue.Action{Type: typ, Data: json.RawMessage(data), Timestamp: "2026-03-01T09:00:00Z"}
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second)
	require.NoError(t, c.Health(context.Background()))

	down := New("http://127.0.0.1:1", 200*time.Millisecond)
	assert.Error(t, down.Health(context.Background()))
}

func TestSyncRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL+"/", time.Second)
	ctx := context.Background()

	result, err := c.SubmitBatch(ctx, "u1", []queue.Action{
		action("SEARCH", `{"q":"passeport"}`),
		action("", `{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 1, result.FailedCount)

	pending, err := c.Pending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SEARCH", pending[0].ActionType)

	updated, err := c.MarkSynced(ctx, []int64{pending[0].ID, pending[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	stats, err := c.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stats.TotalItems)
	assert.Equal(t, 100.0, stats.SyncRate)
}

func TestSubmitAction(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, c.SubmitAction(ctx, "u1", action("BOOKMARK", `{"id":"passport"}`)))

	err := c.SubmitAction(ctx, "u1", action("", `{}`))
	assert.ErrorIs(t, err, ErrNotSynced)
}

func TestAPIErrors(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second)

	_, err := c.SubmitBatch(context.Background(), "", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Missing userId or actions array", apiErr.Message)
}

func TestFaultMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"Too many requests","status":429}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Pending(context.Background(), "u1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "Too many requests", apiErr.Message)
}

// TestDriverEndToEnd drains a local queue into a live server.
func TestDriverEndToEnd(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.json"), nil)
	require.NoError(t, err)
	for _, typ := range []string{"SEARCH", "BOOKMARK", "FEEDBACK"} {
		_, err := q.Enqueue(typ, json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
	}

	d := driver.New(q, &driver.Config{Logger: quietLogger()})
	d.SetDefault(driver.ProcessorFunc(func(ctx context.Context, a queue.Action) error {
		return c.SubmitAction(ctx, "u1", a)
	}))

	report, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 0, q.Len())

	pending, err := c.Pending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "SEARCH", pending[0].ActionType)
	assert.Equal(t, "FEEDBACK", pending[2].ActionType)
}

func TestSubmitBatchOmitsLocalID(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"syncedCount":1,"failedCount":0,"actions":[{"synced":true}]}}`))
	}))
	defer srv.Close()

	a := action("SEARCH", `{"q":"cin"}`)
	a.ID = "local-1"
	require.NoError(t, New(srv.URL, time.Second).SubmitAction(context.Background(), "u1", a))

	actions := got["actions"].([]any)
	require.Len(t, actions, 1)
	sent := actions[0].(map[string]any)
	assert.NotContains(t, sent, "id")
	assert.Equal(t, "SEARCH", sent["type"])
	assert.Equal(t, "2026-03-01T09:00:00Z", sent["timestamp"])
}
