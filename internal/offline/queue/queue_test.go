package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moussadar/moussadar/internal/clock"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.json"), clock.NewSteppingClock(testEpoch, time.Second))
	require.NoError(t, err)
	return s
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.DrainAll())
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Open(path, nil)
	assert.Error(t, err)
}

func TestEnqueue_PersistsImmediately(t *testing.T) {
	s := openTestStore(t)

	a, err := s.Enqueue("SEARCH", json.RawMessage(`{"q":"passeport"}`))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T09:00:00Z", a.Timestamp)

	_, err = s.Enqueue("BOOKMARK", nil)
	require.NoError(t, err)

	reopened, err := Open(s.Path(), nil)
	require.NoError(t, err)
	items := reopened.DrainAll()
	require.Len(t, items, 2)
	assert.Equal(t, "SEARCH", items[0].Type)
	assert.JSONEq(t, `{"q":"passeport"}`, string(items[0].Data))
	assert.Equal(t, "BOOKMARK", items[1].Type)
	assert.Equal(t, "2026-03-01T09:00:01Z", items[1].Timestamp)
}

func TestEnqueue_Validation(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Enqueue("", nil)
	assert.Error(t, err)
	_, err = s.Enqueue("SEARCH", json.RawMessage(`{bad`))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestEnqueue_NoDeduplication(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := s.Enqueue("SEARCH", json.RawMessage(`{"q":"x"}`))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())
}

func TestDrainAll_ReturnsCopy(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Enqueue("SEARCH", nil)
	require.NoError(t, err)

	snapshot := s.DrainAll()
	snapshot[0].Type = "CHANGED"

	assert.Equal(t, "SEARCH", s.DrainAll()[0].Type)
	assert.Equal(t, 1, s.Len())
}

func TestClear_RemovesFile(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Enqueue("SEARCH", nil)
	require.NoError(t, err)
	require.FileExists(t, s.Path())

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.NoFileExists(t, s.Path())

	// Clearing an empty queue is fine
	require.NoError(t, s.Clear())
}

func TestClear_FailureKeepsQueue(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Enqueue("SEARCH", nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	// a non-empty directory where the file was cannot be removed
	require.NoError(t, os.Remove(s.Path()))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(), "keep"), 0755))

	assert.Error(t, s.Clear())
	assert.Equal(t, 1, s.Len(), "queue emptied although the file is still there")
}

func TestDiscard(t *testing.T) {
	s := openTestStore(t)
	for _, typ := range []string{"A", "B", "C", "D"} {
		_, err := s.Enqueue(typ, nil)
		require.NoError(t, err)
	}
	snapshot := s.DrainAll()
	for _, a := range snapshot {
		assert.NotEmpty(t, a.ID)
	}

	removed, err := s.Discard([]Action{snapshot[0], snapshot[2], snapshot[2]})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	items := s.DrainAll()
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].Type)
	assert.Equal(t, "D", items[1].Type)

	reopened, err := Open(s.Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	// already gone
	removed, err = s.Discard(snapshot[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = s.Discard(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, s.Len())
	assert.NoFileExists(t, s.Path())
}

func TestDiscard_IdenticalEntriesWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	entry := `{"type":"SEARCH","data":{"q":"x"},"timestamp":"2026-03-01T09:00:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte("["+entry+","+entry+"]"), 0600))

	s, err := Open(path, nil)
	require.NoError(t, err)
	snapshot := s.DrainAll()
	require.Len(t, snapshot, 2)

	removed, err := s.Discard(snapshot[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestTwoHandlesShareFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	watcher, err := Open(path, nil)
	require.NoError(t, err)
	cli, err := Open(path, nil)
	require.NoError(t, err)

	_, err = cli.Enqueue("SEARCH", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, watcher.Len(), "enqueue from the other handle not seen")

	// an enqueue through one handle keeps what the other wrote
	_, err = watcher.Enqueue("BOOKMARK", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"BOOKMARK", "SEARCH"}, cli.Types())

	snapshot := watcher.DrainAll()
	require.Len(t, snapshot, 2)

	_, err = cli.Enqueue("FEEDBACK", nil)
	require.NoError(t, err)

	removed, err := watcher.Discard(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left := cli.DrainAll()
	require.Len(t, left, 1)
	assert.Equal(t, "FEEDBACK", left[0].Type)
}

func TestTypes(t *testing.T) {
	s := openTestStore(t)
	for _, typ := range []string{"SEARCH", "BOOKMARK", "SEARCH"} {
		_, err := s.Enqueue(typ, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"BOOKMARK", "SEARCH"}, s.Types())
}

func TestConcurrentEnqueue(t *testing.T) {
	s := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Enqueue("SEARCH", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
	reopened, err := Open(s.Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, 20, reopened.Len())
}
