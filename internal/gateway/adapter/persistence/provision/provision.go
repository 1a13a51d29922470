// Package provision deduplicates idempotent first-access provisioning, such
// as lazy table or collection creation. At most one provisioning attempt
// runs per key; concurrent callers await the same in-flight attempt instead
// of racing to create duplicate storage.
package provision

import (
	"context"
	"sync"
)

// Registry tracks provisioning attempts by resource key. Successful attempts
// stay memoized so provisioning happens once per process; failed ones are
// cleared so a later caller retries.
type Registry struct {
	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done chan struct{}
	err  error
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{inflight: make(map[string]*call)}
}

// Do runs fn for key unless an attempt already completed or is in flight, in
// which case the caller awaits that attempt's outcome.
func (r *Registry) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	r.mu.Lock()
	if existing, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-existing.done:
			return existing.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	attempt := &call{done: make(chan struct{})}
	r.inflight[key] = attempt
	r.mu.Unlock()

	attempt.err = fn(ctx)
	close(attempt.done)

	if attempt.err != nil {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}
	return attempt.err
}
