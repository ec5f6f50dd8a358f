// Package queue is the client-side store of actions taken while offline.
//
// The queue is an ordered list persisted as a JSON array. Every mutation
// writes the whole list through to disk before returning, so a crash never
// loses an acknowledged enqueue. The file is the source of truth: every
// operation rereads it first, so several processes can share one queue.
//
// Each enqueue gets its own id. The same action enqueued twice is two
// entries, and removal after a drain matches entries by id, never by
// position.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moussadar/moussadar/internal/clock"
)

// Action is one pending client action. ID is local bookkeeping and is not
// part of what gets sent to the server.
type Action struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// key identifies an entry. Files written before ids existed fall back to
// the entry's content.
func (a Action) key() string {
	if a.ID != "" {
		return "id:" + a.ID
	}
	return "v:" + a.Type + "\x00" + a.Timestamp + "\x00" + string(a.Data)
}

// Store is a file-backed action queue. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	items []Action
	clock clock.Clock
}

// Open loads the queue at path. A missing file is an empty queue; a file
// that does not parse is an error. A nil clk uses the real clock.
func Open(path string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	s := &Store{path: path, clock: clk, items: []Action{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// reload replaces the in-memory list with the file's. On error the list is
// left as it was. Caller holds mu.
func (s *Store) reload() error {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.items = []Action{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []Action
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to parse queue file %s: %w", s.path, err)
	}
	if items == nil {
		items = []Action{}
	}
	s.items = items
	return nil
}

// Enqueue appends an action stamped with the current time and persists the
// queue. On a persistence error the action is not kept.
func (s *Store) Enqueue(actionType string, data json.RawMessage) (Action, error) {
	if actionType == "" {
		return Action{}, fmt.Errorf("action type is required")
	}
	if len(data) > 0 && !json.Valid(data) {
		return Action{}, fmt.Errorf("action data is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return Action{}, err
	}

	a := Action{
		ID:        uuid.NewString(),
		Type:      actionType,
		Data:      data,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	s.items = append(s.items, a)
	if err := s.persist(); err != nil {
		s.items = s.items[:len(s.items)-1]
		return Action{}, err
	}
	return a, nil
}

// DrainAll returns a copy of the queue in order. The queue is unchanged.
// If the file cannot be read the last good copy is returned.
func (s *Store) DrainAll() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.reload()
	out := make([]Action, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of queued actions, falling back to the last good
// read like DrainAll.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.reload()
	return len(s.items)
}

// Clear drops every queued action, including ones this handle has never
// seen, and removes the backing file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove queue file: %w", err)
	}
	s.items = []Action{}
	return nil
}

// Discard removes the given actions from the queue and persists, returning
// how many entries went. Entries are matched by id, so actions enqueued
// after the snapshot was taken stay put, as do entries some other drain
// already removed. Each given action removes at most one entry.
func (s *Store) Discard(actions []Action) (int, error) {
	if len(actions) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return 0, err
	}

	want := make(map[string]int, len(actions))
	for _, a := range actions {
		want[a.key()]++
	}

	kept := make([]Action, 0, len(s.items))
	removed := 0
	for _, a := range s.items {
		k := a.key()
		if want[k] > 0 {
			want[k]--
			removed++
			continue
		}
		kept = append(kept, a)
	}
	if removed == 0 {
		return 0, nil
	}

	prev := s.items
	s.items = kept
	if len(kept) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.items = prev
			return 0, fmt.Errorf("failed to remove queue file: %w", err)
		}
		return removed, nil
	}
	if err := s.persist(); err != nil {
		s.items = prev
		return 0, err
	}
	return removed, nil
}

// Types returns the distinct action types currently queued, sorted.
func (s *Store) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.reload()
	seen := make(map[string]bool)
	for _, a := range s.items {
		seen[a.Type] = true
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// persist writes the queue atomically. Caller holds mu.
func (s *Store) persist() error {
	data, err := json.Marshal(s.items)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	// unique temp name so two processes never write the same file
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
