package hotreload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventKind is the kind of filesystem mutation a ChangeEvent reports.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventMoved    EventKind = "moved"
)

// ChangeEvent is a filesystem mutation under a watched root.
type ChangeEvent struct {
	Path string
	Kind EventKind
	Time time.Time
}

// Watcher handles file system watching for the watched roots
type Watcher struct {
	watcher    *fsnotify.Watcher
	paths      []string
	recursive  []string
	events     chan ChangeEvent
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	isWatching bool
	closed     bool
}

// NewWatcher creates a new file watcher whose event channel holds up to
// buffer events.
func NewWatcher(logger *zap.Logger, buffer int) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if buffer < 1 {
		buffer = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		watcher: fsWatcher,
		paths:   make([]string, 0),
		events:  make(chan ChangeEvent, buffer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Add subscribes to path. When recursive, every non-hidden subdirectory is
// subscribed too, and directories created later are picked up as they appear.
func (w *Watcher) Add(path string, recursive bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("watcher is closed")
	}

	if !recursive {
		return w.addDirLocked(absPath)
	}

	if err := w.addTreeLocked(absPath, nil); err != nil {
		return err
	}
	w.recursive = append(w.recursive, absPath)
	return nil
}

func (w *Watcher) addDirLocked(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add path %s: %w", dir, err)
	}
	w.paths = append(w.paths, dir)
	w.logger.Debug("Added watch path", zap.String("path", dir))
	return nil
}

// addTreeLocked subscribes root and its non-hidden subdirectories. Regular
// files met on the way are passed to found.
func (w *Watcher) addTreeLocked(root string, found func(path string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			if found != nil {
				found(path)
			}
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.addDirLocked(path)
	})
}

// Remove removes a directory from watch
func (w *Watcher) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	if err := w.watcher.Remove(absPath); err != nil {
		return fmt.Errorf("failed to remove path %s: %w", absPath, err)
	}

	for i, p := range w.paths {
		if p == absPath {
			w.paths = append(w.paths[:i], w.paths[i+1:]...)
			break
		}
	}

	w.logger.Debug("Removed watch path", zap.String("path", absPath))
	return nil
}

// Paths returns the subscribed directories.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.paths...)
}

// Events returns the channel for change events
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Start begins watching for file system events
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("watcher is closed")
	}
	if w.isWatching {
		w.mu.Unlock()
		return nil
	}
	w.isWatching = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watch()
	w.logger.Info("File watcher started")
	return nil
}

// Stop stops watching and closes the event channel. A stopped watcher
// cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.isWatching = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	close(w.events)
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Failed to close file watcher", zap.Error(err))
	}
	w.logger.Info("File watcher stopped")
}

// watch is the main event loop for the watcher
func (w *Watcher) watch() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if shouldSkipEvent(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) && w.underRecursiveRoot(event.Name) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addCreatedDir(event.Name)
			return
		}
	}

	kind, ok := eventKind(event.Op)
	if !ok {
		return
	}

	w.logger.Debug("File system event", zap.String("path", event.Name), zap.String("kind", string(kind)))
	w.emit(ChangeEvent{Path: event.Name, Kind: kind, Time: time.Now()})
}

// addCreatedDir subscribes a directory that appeared under a recursive root
// and reports the files already inside it, which were written before the
// subscription existed.
func (w *Watcher) addCreatedDir(dir string) {
	var files []string

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	err := w.addTreeLocked(dir, func(path string) {
		if !shouldSkipEvent(path) {
			files = append(files, path)
		}
	})
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("Failed to watch new directory", zap.String("path", dir), zap.Error(err))
		return
	}

	now := time.Now()
	for _, path := range files {
		w.emit(ChangeEvent{Path: path, Kind: EventCreated, Time: now})
	}
}

func (w *Watcher) emit(event ChangeEvent) {
	select {
	case w.events <- event:
	case <-w.ctx.Done():
	}
}

func (w *Watcher) underRecursiveRoot(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, root := range w.recursive {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// eventKind maps an fsnotify op to a ChangeEvent kind. Chmod-only events are
// dropped.
func eventKind(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreated, true
	case op.Has(fsnotify.Write):
		return EventModified, true
	case op.Has(fsnotify.Remove):
		return EventDeleted, true
	case op.Has(fsnotify.Rename):
		return EventMoved, true
	default:
		return "", false
	}
}

// shouldSkipEvent reports editor temp files and hidden entries.
func shouldSkipEvent(path string) bool {
	base := filepath.Base(path)
	if base == "" || base == "." {
		return true
	}
	switch filepath.Ext(base) {
	case ".tmp", ".swp", ".swx":
		return true
	}
	return isHidden(base) ||
		base[0] == '#' ||
		strings.HasSuffix(base, "~")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~")
}

// IsWatching returns whether the watcher is currently active
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isWatching
}
