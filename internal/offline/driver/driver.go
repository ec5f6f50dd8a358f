// Package driver replays the offline queue once connectivity returns.
//
// A drain snapshots the queue, runs every action through the processor
// registered for its type one at a time, then removes the snapshot from the
// queue. A failing processor does not stop the remaining actions. Actions
// enqueued while a drain runs are never part of its snapshot and stay
// queued for the next one.
//
// With the default ClearAll policy the whole snapshot is removed even when
// some actions failed, so those actions are lost. ClearAcknowledged keeps
// failed actions queued for the next drain.
package driver

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/moussadar/moussadar/internal/offline/queue"
)

// ClearPolicy decides what a drain removes from the queue.
type ClearPolicy int

const (
	// ClearAll removes every action of the drained snapshot.
	ClearAll ClearPolicy = iota
	// ClearAcknowledged removes only the actions whose processor succeeded.
	ClearAcknowledged
)

// String returns the policy name.
func (p ClearPolicy) String() string {
	switch p {
	case ClearAll:
		return "clear-all"
	case ClearAcknowledged:
		return "clear-acknowledged"
	default:
		return "unknown"
	}
}

// Processor handles one queued action.
type Processor interface {
	Process(ctx context.Context, action queue.Action) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, action queue.Action) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, action queue.Action) error {
	return f(ctx, action)
}

// Config holds driver options.
type Config struct {
	// Policy for clearing the queue after a drain (default: ClearAll)
	Policy ClearPolicy

	// SingleFlight collapses drains that overlap into one
	SingleFlight bool

	// Logger for drain activity
	Logger *log.Logger
}

// DefaultConfig returns the lossy, non-collapsing defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy: ClearAll,
		Logger: log.New(os.Stderr, "[driver] ", log.LstdFlags),
	}
}

// Report summarizes one drain.
type Report struct {
	// Snapshot is the number of actions the drain saw
	Snapshot int

	Processed int
	Failed    int

	// Unknown counts actions with no processor; they count as processed
	Unknown int

	// Removed is how many entries the clear step took off the queue
	Removed int

	// Shared is set when this report came from a concurrent drain
	Shared bool
}

// Driver drains a queue through per-type processors.
type Driver struct {
	queue  *queue.Store
	config *Config

	mu         sync.RWMutex
	processors map[string]Processor
	fallback   Processor

	group singleflight.Group
}

// New creates a driver for q. A nil cfg uses DefaultConfig().
func New(q *queue.Store, cfg *Config) *Driver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	return &Driver{
		queue:      q,
		config:     cfg,
		processors: make(map[string]Processor),
	}
}

// Register sets the processor for actionType.
func (d *Driver) Register(actionType string, p Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processors[actionType] = p
}

// SetDefault sets the processor for types with no registration.
func (d *Driver) SetDefault(p Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = p
}

func (d *Driver) processorFor(actionType string) Processor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.processors[actionType]; ok {
		return p
	}
	return d.fallback
}

// Drain processes the current queue once. An empty queue is a no-op.
//
// Without SingleFlight, overlapping calls each snapshot the same queue and
// process its actions again.
func (d *Driver) Drain(ctx context.Context) (*Report, error) {
	if !d.config.SingleFlight {
		return d.drain(ctx)
	}

	v, err, shared := d.group.Do("drain", func() (any, error) {
		return d.drain(ctx)
	})
	if err != nil {
		return nil, err
	}
	report := *v.(*Report)
	report.Shared = shared
	return &report, nil
}

func (d *Driver) drain(ctx context.Context) (*Report, error) {
	snapshot := d.queue.DrainAll()
	report := &Report{Snapshot: len(snapshot)}
	if len(snapshot) == 0 {
		return report, nil
	}

	d.config.Logger.Printf("Syncing %d offline action(s)", len(snapshot))

	acked := make([]queue.Action, 0, len(snapshot))
	for _, action := range snapshot {
		p := d.processorFor(action.Type)
		if p == nil {
			d.config.Logger.Printf("WARNING: unknown offline action type: %s", action.Type)
			report.Unknown++
			report.Processed++
			acked = append(acked, action)
			continue
		}

		if err := p.Process(ctx, action); err != nil {
			d.config.Logger.Printf("WARNING: failed to sync offline action %s: %v", action.Type, err)
			report.Failed++
			continue
		}
		report.Processed++
		acked = append(acked, action)
	}

	drop := snapshot
	if d.config.Policy == ClearAcknowledged {
		drop = acked
	}
	removed, err := d.queue.Discard(drop)
	if err != nil {
		return report, fmt.Errorf("failed to remove synced actions: %w", err)
	}
	report.Removed = removed

	if report.Failed > 0 && d.config.Policy == ClearAll {
		d.config.Logger.Printf("WARNING: %d failed action(s) were dropped", report.Failed)
	}
	return report, nil
}
