package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

func openTestApp(t *testing.T) *App {
	t.Helper()
	app, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return app
}

func TestOpen_Defaults(t *testing.T) {
	s := openTestApp(t).Snapshot()
	assert.Equal(t, schema.LangFR, s.Language)
	assert.False(t, s.IsRTL())
	assert.True(t, s.CacheEnabled)
	assert.Empty(t, s.Preferences)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0600))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestSetLanguage_Persists(t *testing.T) {
	app := openTestApp(t)
	require.NoError(t, app.SetLanguage(schema.LangAR))
	assert.True(t, app.Snapshot().IsRTL())

	reopened, err := Open(app.path)
	require.NoError(t, err)
	assert.Equal(t, schema.LangAR, reopened.Snapshot().Language)

	assert.ErrorIs(t, app.SetLanguage("en"), schema.ErrUnsupportedLang)
	assert.Equal(t, schema.LangAR, app.Snapshot().Language)
}

func TestUpdatePreferences_Merges(t *testing.T) {
	app := openTestApp(t)
	require.NoError(t, app.UpdatePreferences(map[string]any{"theme": "dark"}))
	require.NoError(t, app.UpdatePreferences(map[string]any{"notifications": false}))

	prefs := app.Snapshot().Preferences
	assert.Equal(t, "dark", prefs["theme"])
	assert.Equal(t, false, prefs["notifications"])

	reopened, err := Open(app.path)
	require.NoError(t, err)
	assert.Equal(t, "dark", reopened.Snapshot().Preferences["theme"])
}

func TestSnapshot_IsACopy(t *testing.T) {
	app := openTestApp(t)
	require.NoError(t, app.UpdatePreferences(map[string]any{"theme": "light"}))

	s := app.Snapshot()
	s.Preferences["theme"] = "dark"
	assert.Equal(t, "light", app.Snapshot().Preferences["theme"])
}

func TestSetOnline_NotPersisted(t *testing.T) {
	app := openTestApp(t)
	app.SetOnline(true)
	assert.True(t, app.Snapshot().Online)
	assert.NoFileExists(t, app.path)
}

func TestSubscribe(t *testing.T) {
	app := openTestApp(t)

	var (
		mu  sync.Mutex
		got []State
	)
	unsubscribe := app.Subscribe(func(s State) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	app.SetOnline(true)
	app.SetOnline(true) // no change, no notification
	require.NoError(t, app.SetLanguage(schema.LangAR))

	unsubscribe()
	app.SetOnline(false)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.True(t, got[0].Online)
	assert.Equal(t, schema.LangAR, got[1].Language)
}
