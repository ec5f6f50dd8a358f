package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// SeedSink is notified after each reload.
type SeedSink interface {
	// OnSeedReloaded reports the files that changed, how many records were
	// upserted and how many files could not be applied.
	OnSeedReloaded(files []string, records, failed int)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must stay quiet before it is
	// applied. Editors often write a file several times in a row.
	DebounceInterval time.Duration

	// Events receives reload notifications (optional)
	Events SeedSink

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 300 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[seed] ", log.LstdFlags),
	}
}

// Daemon keeps the reference catalogue in step with a seed directory.
type Daemon struct {
	db     *db.DB
	dir    string
	config *Config

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon for dir. Use Start to begin watching.
func New(database *db.DB, dir string, config *Config) (*Daemon, error) {
	if database == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("seed directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		db:          database,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start applies the whole directory once, then watches it and applies
// changed files after they settle. It blocks until ctx is cancelled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting seed watcher")

	if err := d.PerformFullSync(ctx); err != nil {
		return fmt.Errorf("initial seed failed: %w", err)
	}

	if err := d.watcher.Start(d.dir); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s", d.dir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down. Safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping seed watcher")
		d.cancel()
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("WARNING: error closing watcher: %v", err)
		}
		d.wg.Wait()
		d.config.Logger.Println("Seed watcher stopped")
	})
	return nil
}

// PerformFullSync upserts every seed file in the directory in one
// transaction.
func (d *Daemon) PerformFullSync(ctx context.Context) error {
	seed, err := schema.ReadSeedDir(d.dir)
	if err != nil {
		return err
	}
	if err := d.db.ApplySeed(ctx, seed); err != nil {
		return err
	}
	d.config.Logger.Printf("Applied %d seed records from %s", seed.Len(), d.dir)
	return nil
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, filepath.Base(event.Path))
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("WARNING: watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// settled removes and returns the queued paths that have been quiet for a
// full debounce interval.
func (d *Daemon) settled(now time.Time) []string {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	var paths []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		paths = append(paths, path)
		delete(d.changeQueue, path)
	}
	sort.Strings(paths)
	return paths
}

// processPendingChanges applies every settled file in a single seed
// transaction. Removed files are reported but their records stay; seeding
// only ever upserts.
func (d *Daemon) processPendingChanges() {
	paths := d.settled(time.Now())
	if len(paths) == 0 {
		return
	}

	merged := &schema.SeedFile{}
	failed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			d.config.Logger.Printf("Seed file removed, keeping its records: %s", filepath.Base(path))
			continue
		}
		seed, err := schema.ReadSeedFile(path)
		if err != nil {
			d.config.Logger.Printf("WARNING: skipping seed file: %v", err)
			failed++
			continue
		}
		merged.Merge(seed)
	}

	records := 0
	if merged.Len() > 0 {
		if err := d.db.ApplySeed(d.ctx, merged); err != nil {
			d.config.Logger.Printf("WARNING: failed to apply seed changes: %v", err)
			failed = len(paths)
		} else {
			records = merged.Len()
			d.config.Logger.Printf("Reloaded %d seed records from %d file(s)", records, len(paths))
		}
	}

	if d.config.Events != nil {
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = filepath.Base(p)
		}
		d.config.Events.OnSeedReloaded(names, records, failed)
	}
}
