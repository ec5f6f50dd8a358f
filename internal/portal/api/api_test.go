package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moussadar/moussadar/internal/clock"
	"github.com/moussadar/moussadar/internal/portal/chat"
	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/schema"
	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv *httptest.Server
	db  *db.DB
	clk *clock.MockClock
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Count   *int            `json:"count"`
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestEnv starts a server over a seeded temp database. Rate limits are
// off unless configure turns them on.
func newTestEnv(t *testing.T, configure func(*Config)) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.InitSchema())

	clk := clock.NewSteppingClock(testEpoch, time.Millisecond)
	database.SetClock(clk)

	seed, err := schema.DefaultSeed()
	require.NoError(t, err)
	require.NoError(t, database.ApplySeed(context.Background(), seed))

	responder, err := chat.New(database, &chat.Config{Clock: clk, Logger: quietLogger()})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.APIPerWindow = 0
	cfg.AIPerWindow = 0
	cfg.Clock = clk
	cfg.Logger = quietLogger()
	if configure != nil {
		configure(cfg)
	}

	server := New(Deps{
		DB:   database,
		Sync: portalsync.New(database, &portalsync.Config{Logger: quietLogger()}),
		Chat: responder,
	}, cfg)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, db: database, clk: clk}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, *response) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, &out
}

func decodeData[T any](t *testing.T, r *response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func errorString(t *testing.T, r *response) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(r.Error, &s))
	return s
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.srv.Client().Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "development", body["environment"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "timestamp")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/nope", "/api/nope", "/api/sync/nowhere"} {
		status, resp := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.False(t, resp.Success)

		var fault faultBody
		require.NoError(t, json.Unmarshal(resp.Error, &fault))
		assert.Equal(t, "Route not found", fault.Message)
		assert.Equal(t, http.StatusNotFound, fault.Status)
		assert.NotEmpty(t, fault.Timestamp)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.srv.Client().Get(env.srv.URL + "/api/services")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, contentSecurityPolicy, resp.Header.Get("Content-Security-Policy"))
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/services", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestServices(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("list", func(t *testing.T) {
		status, resp := env.do(t, http.MethodGet, "/api/services", nil)
		require.Equal(t, http.StatusOK, status)
		require.NotNil(t, resp.Count)
		assert.Equal(t, 5, *resp.Count)

		services := decodeData[[]schema.LocalizedService](t, resp)
		assert.Len(t, services, 5)
	})

	t.Run("filters", func(t *testing.T) {
		_, resp := env.do(t, http.MethodGet, "/api/services?offline=true", nil)
		assert.Equal(t, 3, *resp.Count)

		_, resp = env.do(t, http.MethodGet, "/api/services?category=education", nil)
		services := decodeData[[]schema.LocalizedService](t, resp)
		require.Len(t, services, 1)
		assert.Equal(t, "school-registration", services[0].ID)
	})

	t.Run("arabic", func(t *testing.T) {
		_, resp := env.do(t, http.MethodGet, "/api/services/passport?lang=ar", nil)
		service := decodeData[schema.LocalizedService](t, resp)
		assert.Equal(t, "passport", service.ID)
		assert.Equal(t, "جواز السفر", service.Title)
	})

	t.Run("unsupported lang", func(t *testing.T) {
		status, resp := env.do(t, http.MethodGet, "/api/services?lang=en", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Unsupported language", errorString(t, resp))
	})

	t.Run("not found", func(t *testing.T) {
		status, resp := env.do(t, http.MethodGet, "/api/services/nope", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Service not found", errorString(t, resp))
	})

	t.Run("categories", func(t *testing.T) {
		status, resp := env.do(t, http.MethodGet, "/api/services/categories/list", nil)
		require.Equal(t, http.StatusOK, status)
		categories := decodeData[[]schema.Category](t, resp)
		assert.NotEmpty(t, categories)
		for _, c := range categories {
			assert.NotEmpty(t, c.Label, c.Category)
		}
	})
}

func TestDocumentsAndProcedures(t *testing.T) {
	env := newTestEnv(t, nil)

	_, resp := env.do(t, http.MethodGet, "/api/documents", nil)
	assert.Equal(t, 2, *resp.Count)

	status, resp := env.do(t, http.MethodGet, "/api/documents/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Document not found", errorString(t, resp))

	_, resp = env.do(t, http.MethodGet, "/api/procedures?difficulty=hard", nil)
	procedures := decodeData[[]schema.LocalizedProcedure](t, resp)
	require.Len(t, procedures, 1)
	assert.Equal(t, "vehicle-registration", procedures[0].ID)

	status, resp = env.do(t, http.MethodGet, "/api/procedures/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Procedure not found", errorString(t, resp))

	status, _ = env.do(t, http.MethodGet, "/api/procedures/categories/list?lang=ar", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestDocumentRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodPost, "/api/documents/request", map[string]any{
		"documentId": "passport-doc",
		"userId":     "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields", errorString(t, resp))

	status, resp = env.do(t, http.MethodPost, "/api/documents/request", map[string]any{
		"documentId": "passport-doc",
		"userId":     "user-1",
		"data":       map[string]any{"urgent": true},
	})
	require.Equal(t, http.StatusOK, status)
	out := decodeData[map[string]string](t, resp)
	assert.Regexp(t, `^REQ-\d+-[0-9a-f]{9}$`, out["requestId"])
	assert.Equal(t, "Document request submitted successfully", out["message"])

	pending, err := env.db.ListPending(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, schema.ActionDocumentRequest, pending[0].ActionType)
	assert.Contains(t, string(pending[0].ActionData), out["requestId"])
}

func TestDocumentTracking(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodGet, "/api/documents/track/REQ-1-abc", nil)
	require.Equal(t, http.StatusOK, status)

	track := decodeData[tracking](t, resp)
	assert.Equal(t, "REQ-1-abc", track.RequestID)
	assert.Equal(t, "processing", track.Status)
	assert.Equal(t, "En cours de traitement", track.StatusLabel.FR)
	require.Len(t, track.Steps, 4)
	assert.True(t, track.Steps[1].Completed)
	assert.False(t, track.Steps[2].Completed)
	assert.Nil(t, track.Steps[3].Date)

	eta, err := time.Parse(time.RFC3339Nano, track.EstimatedCompletion)
	require.NoError(t, err)
	assert.True(t, eta.After(testEpoch.Add(6*24*time.Hour)))
}

func TestProcedureSession(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodPost, "/api/procedures/start", map[string]any{
		"procedureId": "change-of-address",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = env.do(t, http.MethodPost, "/api/procedures/start", map[string]any{
		"procedureId": "change-of-address",
		"userId":      "user-1",
	})
	require.Equal(t, http.StatusOK, status)
	sessionID := decodeData[map[string]string](t, resp)["sessionId"]
	assert.True(t, strings.HasPrefix(sessionID, "SESSION-"))

	status, resp = env.do(t, http.MethodPut, "/api/procedures/progress/"+sessionID, map[string]any{
		"currentStep": 2,
		"status":      "in_progress",
		"data":        map[string]any{"city": "Alger"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Progress updated successfully", decodeData[map[string]string](t, resp)["message"])

	pending, err := env.db.ListPending(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	var data map[string]any
	require.NoError(t, json.Unmarshal(pending[0].ActionData, &data))
	assert.EqualValues(t, 2, data["currentStep"])
	assert.Equal(t, "in_progress", data["status"])

	status, resp = env.do(t, http.MethodPut, "/api/procedures/progress/SESSION-missing", map[string]any{
		"currentStep": 1,
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Procedure session not found", errorString(t, resp))
}

func TestSyncFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodPost, "/api/sync/offline", map[string]any{
		"userId": "u1",
		"actions": []any{
			map[string]any{"type": "SEARCH", "data": map[string]any{"q": "passeport"}},
			map[string]any{"data": "no type"},
			"not an object",
		},
	})
	require.Equal(t, http.StatusOK, status)
	result := decodeData[portalsync.BatchResult](t, resp)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 2, result.FailedCount)
	require.Len(t, result.Actions, 3)
	assert.True(t, result.Actions[0].Synced)
	assert.NotEmpty(t, result.Actions[1].Error)

	status, resp = env.do(t, http.MethodGet, "/api/sync/pending/u1", nil)
	require.Equal(t, http.StatusOK, status)
	pending := decodeData[[]schema.PendingItem](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, *resp.Count)
	assert.Equal(t, "SEARCH", pending[0].ActionType)
	assert.JSONEq(t, `{"q":"passeport"}`, string(pending[0].ActionData))

	status, resp = env.do(t, http.MethodPut, "/api/sync/synced", map[string]any{
		"itemIds": []any{pending[0].ID, 9999},
	})
	require.Equal(t, http.StatusOK, status)
	marked := decodeData[map[string]any](t, resp)
	assert.EqualValues(t, 1, marked["updatedCount"])
	assert.Equal(t, "1 items marked as synced", marked["message"])

	_, resp = env.do(t, http.MethodGet, "/api/sync/pending/u1", nil)
	assert.Equal(t, 0, *resp.Count)

	status, resp = env.do(t, http.MethodGet, "/api/sync/stats/u1", nil)
	require.Equal(t, http.StatusOK, status)
	stats := decodeData[portalsync.Stats](t, resp)
	assert.Equal(t, 1, stats.Stats.TotalItems)
	assert.Equal(t, 1, stats.Stats.SyncedItems)
	assert.Equal(t, 100.0, stats.SyncRate)
	require.Len(t, stats.RecentActions, 1)
	assert.Equal(t, "SEARCH", stats.RecentActions[0].ActionType)
}

func TestSyncNumericUserID(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodPost, "/api/sync/offline", map[string]any{
		"userId":  42,
		"actions": []any{map[string]any{"type": "SEARCH"}},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decodeData[portalsync.BatchResult](t, resp).SyncedCount)

	_, resp = env.do(t, http.MethodGet, "/api/sync/pending/42", nil)
	assert.Equal(t, 1, *resp.Count)
}

func TestSyncValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   string
	}{
		{"missing user", http.MethodPost, "/api/sync/offline", map[string]any{"actions": []any{}}, "Missing userId or actions array"},
		{"actions not array", http.MethodPost, "/api/sync/offline", map[string]any{"userId": "u1", "actions": "x"}, "Missing userId or actions array"},
		{"zero user", http.MethodPost, "/api/sync/offline", map[string]any{"userId": 0, "actions": []any{}}, "Missing userId or actions array"},
		{"not json", http.MethodPost, "/api/sync/offline", "{oops", "Missing userId or actions array"},
		{"item ids not array", http.MethodPut, "/api/sync/synced", map[string]any{"itemIds": 3}, "itemIds must be an array"},
		{"item ids missing", http.MethodPut, "/api/sync/synced", map[string]any{}, "itemIds must be an array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.want, errorString(t, resp))
		})
	}

	items, err := env.db.ListQueueItems(context.Background(), db.QueueFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "je veux une carte identité",
	})
	require.Equal(t, http.StatusOK, status)
	reply := decodeData[chat.Reply](t, resp)
	assert.Equal(t, chat.TypeText, reply.Response.Type)
	assert.Contains(t, reply.Response.Content, "carte d'identité")

	status, resp = env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "Comment obtenir une carte d'identité ?",
		"lang":    "fr",
	})
	require.Equal(t, http.StatusOK, status)
	reply = decodeData[chat.Reply](t, resp)
	assert.Contains(t, reply.Response.Content, "formulaire en ligne")

	status, _ = env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{"message": strings.Repeat("a", 1001)})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{"message": "salut", "lang": "en"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSuggestionsAndFeedback(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodGet, "/api/ai/suggestions?category=documents", nil)
	require.Equal(t, http.StatusOK, status)
	suggestions := decodeData[[]string](t, resp)
	assert.Len(t, suggestions, 2)

	status, resp = env.do(t, http.MethodPost, "/api/ai/feedback", map[string]any{
		"messageId": "Comment obtenir une carte d'identité ?",
		"helpful":   true,
	})
	require.Equal(t, http.StatusOK, status)
	out := decodeData[map[string]any](t, resp)
	assert.Equal(t, "Feedback recorded successfully", out["message"])
	assert.Equal(t, true, out["updated"])

	status, _ = env.do(t, http.MethodPost, "/api/ai/feedback", map[string]any{"messageId": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.APIPerWindow = 2
		c.AIPerWindow = 1
		c.Window = time.Hour
	})

	for i := 0; i < 2; i++ {
		status, _ := env.do(t, http.MethodGet, "/api/services", nil)
		require.Equal(t, http.StatusOK, status)
	}

	status, resp := env.do(t, http.MethodGet, "/api/services", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	var fault faultBody
	require.NoError(t, json.Unmarshal(resp.Error, &fault))
	assert.Equal(t, apiLimitMessage, fault.Message)

	// /health sits outside the limited group
	r, err := env.srv.Client().Get(env.srv.URL + "/health")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestAIRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.APIPerWindow = 100
		c.AIPerWindow = 1
		c.Window = time.Hour
	})

	status, _ := env.do(t, http.MethodGet, "/api/ai/suggestions", nil)
	require.Equal(t, http.StatusOK, status)

	status, resp := env.do(t, http.MethodGet, "/api/ai/suggestions", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	var fault faultBody
	require.NoError(t, json.Unmarshal(resp.Error, &fault))
	assert.Equal(t, aiLimitMessage, fault.Message)
}

func TestRecoverer(t *testing.T) {
	boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	for _, production := range []bool{false, true} {
		rec := httptest.NewRecorder()
		recoverer(quietLogger(), production)(boom).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		var fault faultBody
		require.NoError(t, json.Unmarshal(resp.Error, &fault))
		assert.Equal(t, "boom", fault.Message)
		if production {
			assert.Empty(t, fault.Stack)
		} else {
			assert.NotEmpty(t, fault.Stack)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	handler := bodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if err := decodeJSON(r, &v); err != nil {
			writeDecodeError(w, err)
			return
		}
		writeData(w, v)
	}))

	rec := httptest.NewRecorder()
	body := `{"userId":"` + strings.Repeat("x", 64) + `"}`
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	server := New(Deps{}, &Config{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
