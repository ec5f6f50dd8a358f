package driver

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Checker probes connectivity. A nil error means online.
type Checker func(ctx context.Context) error

// MonitorConfig holds monitor options.
type MonitorConfig struct {
	// Interval between probes (default: 5s)
	Interval time.Duration

	// OnChange is called on every online/offline transition, including
	// the first probe result
	OnChange func(online bool)

	// OnReconnect is called on each offline to online transition
	OnReconnect func(ctx context.Context)

	Logger *log.Logger
}

// Monitor polls a Checker and reports connectivity transitions.
type Monitor struct {
	check  Checker
	config MonitorConfig

	mu     sync.Mutex
	known  bool
	online bool
}

// NewMonitor creates a monitor. Call Run to start probing.
func NewMonitor(check Checker, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	return &Monitor{check: check, config: cfg}
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Probe runs one check and fires the callbacks for a transition. A first
// probe that finds the server online counts as a reconnect, since actions
// may have queued while the client was not running.
func (m *Monitor) Probe(ctx context.Context) bool {
	online := m.check(ctx) == nil

	m.mu.Lock()
	changed := !m.known || m.online != online
	reconnect := online && (!m.known || !m.online)
	m.known = true
	m.online = online
	m.mu.Unlock()

	if changed {
		if online {
			m.config.Logger.Println("Connection restored")
		} else {
			m.config.Logger.Println("Connection lost, switching to offline mode")
		}
		if m.config.OnChange != nil {
			m.config.OnChange(online)
		}
	}
	if reconnect && m.config.OnReconnect != nil {
		m.config.OnReconnect(ctx)
	}
	return online
}

// Run probes immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
