// Package shutdown releases a run's resources in a fixed order and turns
// SIGINT/SIGTERM into context cancellation.
package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func releases one resource. It should honour ctx's deadline where it can.
type Func func(ctx context.Context) error

// Priorities used by go-blur. Lower runs earlier.
const (
	PriorityQueues  = 10
	PriorityHistory = 30
	PriorityLogger  = 90
)

// entry holds a registered shutdown function with metadata.
type entry struct {
	name     string
	fn       Func
	priority int // lower = earlier execution
	seq      int // registration order, breaks priority ties
}

// Registry maintains an ordered collection of shutdown functions.
//
// Usage:
//
//	registry := NewRegistry()
//	registry.Register("queues", PriorityQueues, func(ctx context.Context) error {
//	    pool.Close()
//	    return nil
//	})
//	registry.Register("history", PriorityHistory, func(ctx context.Context) error {
//	    return db.Close()
//	})
//
//	for _, err := range registry.Shutdown(ctx) {
//	    logger.Warn("shutdown step failed", zap.Error(err))
//	}
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates a new Registry ready to accept registrations.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a shutdown function with a name and priority.
// Registration after Shutdown has been called is a no-op.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{
		name:     name,
		fn:       fn,
		priority: priority,
		seq:      len(r.entries),
	})
}

// Shutdown runs every registered function in priority order, equal
// priorities in registration order. All functions run even if some fail;
// each failure is returned wrapped with its name. Later calls return nil.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

// Names returns the names of all registered shutdown functions in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	sorted := r.sortedLocked()
	r.mu.Unlock()

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered shutdown functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed returns true if Shutdown has been called.
func (r *Registry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) sortedLocked() []entry {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}
