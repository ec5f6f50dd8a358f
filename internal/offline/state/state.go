// Package state holds the client's application state: language, online
// flag and user preferences.
//
// All reads go through Snapshot and all writes through the mutators, which
// persist what needs persisting and then notify subscribers. The online
// flag is runtime-only and never written to disk.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

// State is a point-in-time copy of the application state.
type State struct {
	Language     schema.Lang    `json:"language"`
	Online       bool           `json:"-"`
	CacheEnabled bool           `json:"-"`
	Preferences  map[string]any `json:"userPreferences"`
}

// IsRTL reports whether the interface language is written right to left.
func (s State) IsRTL() bool {
	return s.Language == schema.LangAR
}

// App is the state holder. Safe for concurrent use.
type App struct {
	mu    sync.Mutex
	path  string
	state State

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(State)
}

// Open loads persisted state from path. A missing file gives French, no
// preferences.
func Open(path string) (*App, error) {
	a := &App{
		path: path,
		state: State{
			Language:     schema.LangFR,
			CacheEnabled: true,
			Preferences:  map[string]any{},
		},
		subs: make(map[int]func(State)),
	}

	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var stored State
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if lang, err := schema.ParseLang(string(stored.Language)); err == nil {
		a.state.Language = lang
	}
	if stored.Preferences != nil {
		a.state.Preferences = stored.Preferences
	}
	return a, nil
}

// Snapshot returns a copy of the current state.
func (a *App) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

func (a *App) copyLocked() State {
	s := a.state
	s.Preferences = maps.Clone(a.state.Preferences)
	return s
}

// Subscribe registers fn to receive the state after every change. The
// returned function unsubscribes.
func (a *App) Subscribe(fn func(State)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

// mutate applies fn under the lock, persists when asked and the change
// stuck, then notifies subscribers outside the lock. fn reports whether
// anything changed.
func (a *App) mutate(persist bool, fn func(s *State) bool) error {
	a.mu.Lock()
	prev := a.copyLocked()
	if !fn(&a.state) {
		a.mu.Unlock()
		return nil
	}
	if persist {
		if err := a.saveLocked(); err != nil {
			a.state = prev
			a.mu.Unlock()
			return err
		}
	}
	snapshot := a.copyLocked()
	a.mu.Unlock()

	a.subMu.Lock()
	subs := make([]func(State), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// SetLanguage switches the interface language and persists it.
func (a *App) SetLanguage(lang schema.Lang) error {
	parsed, err := schema.ParseLang(string(lang))
	if err != nil {
		return err
	}
	return a.mutate(true, func(s *State) bool {
		if s.Language == parsed {
			return false
		}
		s.Language = parsed
		return true
	})
}

// SetOnline records connectivity. It is not persisted.
func (a *App) SetOnline(online bool) {
	_ = a.mutate(false, func(s *State) bool {
		if s.Online == online {
			return false
		}
		s.Online = online
		return true
	})
}

// UpdatePreferences merges prefs into the stored preferences and persists.
func (a *App) UpdatePreferences(prefs map[string]any) error {
	return a.mutate(true, func(s *State) bool {
		if len(prefs) == 0 {
			return false
		}
		if s.Preferences == nil {
			s.Preferences = map[string]any{}
		}
		maps.Copy(s.Preferences, prefs)
		return true
	})
}

// saveLocked writes the persisted fields atomically. Caller holds mu.
func (a *App) saveLocked() error {
	data, err := json.MarshalIndent(a.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpPath := a.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
