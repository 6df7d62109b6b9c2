package hotreload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/synthlane/reload-watcher/internal/bench"
	"go.uber.org/zap"
)

// Listener receives the outcome of every dispatch
type Listener func(ctx context.Context, outcome bench.Outcome) error

// Broadcaster fans dispatch outcomes out to named listeners
type Broadcaster struct {
	listeners map[string]Listener
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewBroadcaster creates a new outcome broadcaster
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[string]Listener),
		logger:    logger,
	}
}

// AddListener adds a listener with a unique name
func (b *Broadcaster) AddListener(name string, listener Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.listeners[name]; exists {
		return fmt.Errorf("listener %s already exists", name)
	}

	b.listeners[name] = listener
	b.logger.Debug("Added outcome listener", zap.String("name", name))
	return nil
}

// RemoveListener removes a listener by name
func (b *Broadcaster) RemoveListener(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, name)
	b.logger.Debug("Removed outcome listener", zap.String("name", name))
}

// Broadcast invokes every listener concurrently and waits for all of them.
// Listener failures are joined into the returned error.
func (b *Broadcaster) Broadcast(ctx context.Context, outcome bench.Outcome) error {
	b.mu.RLock()
	names := make([]string, 0, len(b.listeners))
	listeners := make([]Listener, 0, len(b.listeners))
	for name, listener := range b.listeners {
		names = append(names, name)
		listeners = append(listeners, listener)
	}
	b.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(listeners))

	for i := range listeners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := listeners[i](ctx, outcome); err != nil {
				errs[i] = fmt.Errorf("listener %s failed: %w", names[i], err)
			}
		}(i)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Close removes all listeners
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = make(map[string]Listener)
	b.logger.Debug("Outcome broadcaster closed")
}

// ListenerCount returns the number of registered listeners
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// HasListener checks if a listener with the given name exists
func (b *Broadcaster) HasListener(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.listeners[name]
	return exists
}
