// Package source feeds usage page dumps into the quota service: a watcher
// ingests the page file whenever it changes and a refresher re-dumps it
// when the stored snapshot gets old.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// SourceFile tags snapshots read from the page file.
const SourceFile = "file"

var (
	// ErrNoPage is returned when the page file does not exist yet.
	ErrNoPage = errors.New("usage page file not found")
	// ErrUnchanged is returned when the page file was already ingested.
	ErrUnchanged = errors.New("usage page unchanged")
)

// Sink receives page text. *quota.Service implements it.
type Sink interface {
	IngestText(ctx context.Context, text, source string, capturedAt time.Time) (*models.UsageSnapshot, error)
}

// Event represents a page source event.
type Event struct {
	Error    error
	Snapshot *models.UsageSnapshot
	Type     EventType
}

// EventType defines the type of source event.
type EventType int

const (
	// EventPageIngested indicates that a changed page file was ingested.
	EventPageIngested EventType = iota
	// EventRefreshed indicates that the refresh command produced a new page.
	EventRefreshed
	// EventError indicates a watcher, read or ingest failure.
	EventError
)

// Watcher ingests the usage page file each time it is written.
type Watcher struct {
	mu            sync.Mutex
	filePath      string
	sink          Sink
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	lastModTime   time.Time
	lastSize      int64
	closeOnce     sync.Once
}

// NewWatcher creates the page directory if needed and starts watching it.
// The current file, if any, is not ingested until Load is called.
func NewWatcher(filePath string, sink Sink) (*Watcher, error) {
	if filePath == "" {
		return nil, errors.New("usage page path is empty")
	}

	w := &Watcher{
		filePath:  filePath,
		sink:      sink,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create page directory: %w", err)
	}

	if err := w.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	return w, nil
}

// Events returns the event channel.
func (w *Watcher) Events() <-chan Event {
	return w.eventChan
}

// Path returns the watched page file.
func (w *Watcher) Path() string {
	return w.filePath
}

// Load ingests the page file if it changed since the last ingest. Countdowns
// on the page are anchored at the file's modification time.
func (w *Watcher) Load(ctx context.Context) (*models.UsageSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoPage
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat usage page: %w", err)
	}
	if info.ModTime().Equal(w.lastModTime) && info.Size() == w.lastSize {
		return nil, ErrUnchanged
	}

	data, err := os.ReadFile(w.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage page: %w", err)
	}
	if len(data) == 0 {
		// Caught mid-write; the next event carries the content.
		return nil, ErrUnchanged
	}

	snap, err := w.sink.IngestText(ctx, string(data), SourceFile, info.ModTime())
	if err != nil {
		return nil, err
	}

	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	return snap, nil
}

// startWatcher starts the file system watcher.
func (w *Watcher) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	// Watch the directory; dump tools usually replace the file.
	if err := watcher.Add(filepath.Dir(w.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go w.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (w *Watcher) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(w.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.mu.Lock()
				if w.debounceTimer != nil {
					w.debounceTimer.Stop()
				}
				w.debounceTimer = time.AfterFunc(debounceInterval, w.handleFileChange)
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendEvent(Event{Type: EventError, Error: err})

		case <-w.stopChan:
			return
		}
	}
}

// handleFileChange ingests the page after an external write.
func (w *Watcher) handleFileChange() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	snap, err := w.Load(context.Background())
	switch {
	case err == nil:
		w.sendEvent(Event{Type: EventPageIngested, Snapshot: snap})
	case errors.Is(err, ErrUnchanged), errors.Is(err, ErrNoPage):
	default:
		logger.Warn("failed to ingest usage page", "path", w.filePath, "error", err)
		w.sendEvent(Event{Type: EventError, Error: err})
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (w *Watcher) sendEvent(event Event) {
	select {
	case w.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-w.eventChan:
		default:
		}
		select {
		case w.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopChan)

		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()

		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}
