package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to a seed file.
type FileEvent struct {
	// Path is the absolute path of the file
	Path string
	Op   EventOp
}

// FileWatcher emits FileEvents for YAML files directly inside one
// directory.
type FileWatcher struct {
	fs     *fsnotify.Watcher
	events chan FileEvent
	errors chan error

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	dir     string
}

// NewFileWatcher creates a watcher. Nothing is emitted until Start.
func NewFileWatcher() (*FileWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		fs:     fs,
		events: make(chan FileEvent, 100),
		errors: make(chan error, 10),
	}, nil
}

// Start begins watching dir. A watcher can be started once.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.cancel != nil {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve seed directory %s: %w", dir, err)
	}
	if err := fw.fs.Add(abs); err != nil {
		return fmt.Errorf("failed to watch seed directory %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw.dir = abs
	fw.cancel = cancel
	fw.stopped = make(chan struct{})
	go fw.run(ctx)
	return nil
}

// Stop closes the fsnotify watcher, waits for the loop to exit and then
// closes Events and Errors. Stopping a watcher that never started only
// releases the fsnotify handle.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	cancel, stopped := fw.cancel, fw.stopped
	fw.cancel = nil
	fw.mu.Unlock()

	if cancel == nil {
		return fw.fs.Close()
	}

	cancel()
	err := fw.fs.Close()
	<-stopped

	close(fw.events)
	close(fw.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the event channel. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the error channel. It is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning reports whether the watcher has been started and not stopped.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.cancel != nil
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer close(fw.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.fs.Events:
			if !ok {
				return
			}
			if fe, keep := fw.convertEvent(ev); keep && !forward(ctx, fw.events, fe) {
				return
			}
		case err, ok := <-fw.fs.Errors:
			if !ok || !forward(ctx, fw.errors, err) {
				return
			}
		}
	}
}

// forward sends v on ch unless ctx ends first.
func forward[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// convertEvent maps an fsnotify event to a FileEvent. Non-seed files,
// files in subdirectories and chmod events are ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if !schema.IsSeedFile(event.Name) {
		return FileEvent{}, false
	}

	absPath, err := filepath.Abs(event.Name)
	if err != nil || filepath.Dir(absPath) != fw.dir {
		return FileEvent{}, false
	}

	fe := FileEvent{Path: absPath}
	switch {
	case event.Has(fsnotify.Create):
		fe.Op = OpCreate
	case event.Has(fsnotify.Write):
		fe.Op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// a rename shows up as a create under the new name
		fe.Op = OpDelete
	default:
		return FileEvent{}, false
	}
	return fe, true
}
