package usecase

import (
	"context"
	"sync"

	"docstore-gateway/internal/gateway/domain/model"
)

// rawChange is one adapter change-feed callback, queued for ordered
// processing.
type rawChange struct {
	err     error
	oldData map[string]interface{}
	newData map[string]interface{}
}

// subscription ties a live subscription id to the client event channel and
// the queue feeding its dispatcher goroutine. The queue preserves the
// adapter's emission order; one dispatcher per subscription serializes rule
// evaluation per id while different subscriptions overlap freely.
type subscription struct {
	id     string
	ref    model.Reference
	client *model.Client
	events chan<- model.ChangeEvent

	queue chan rawChange
	done  chan struct{}
	ctx   context.Context

	closeOnce sync.Once
	cancel    context.CancelFunc
}

func newSubscription(id string, ref model.Reference, client *model.Client, events chan<- model.ChangeEvent, queueSize int) *subscription {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		id:     id,
		ref:    ref,
		client: client,
		events: events,
		queue:  make(chan rawChange, queueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

const defaultQueueSize = 64

// handler adapts the adapter callback contract onto the ordered queue.
func (s *subscription) handler() func(err error, oldData, newData map[string]interface{}) {
	return func(err error, oldData, newData map[string]interface{}) {
		s.enqueue(rawChange{err: err, oldData: oldData, newData: newData})
	}
}

// enqueue blocks when the queue is full so adapter ordering is never lost,
// but always yields once the subscription has been released.
func (s *subscription) enqueue(c rawChange) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- c:
	case <-s.done:
	}
}

// run drains the queue until the subscription is released.
func (s *subscription) run(process func(rawChange)) {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.queue:
			process(c)
		}
	}
}

// emit delivers an event to the client channel unless the subscription has
// been released. Nothing is ever sent after close.
func (s *subscription) emit(event model.ChangeEvent) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- event:
	case <-s.done:
	}
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// SubscriptionRegistry tracks live subscriptions by id. It is the only
// mutable shared structure in the orchestrator core; inserts and removals
// are atomic with respect to concurrent subscribe/unsubscribe calls.
type SubscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{subs: make(map[string]*subscription)}
}

func (r *SubscriptionRegistry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.id] = sub
}

// remove detaches and returns the subscription, or nil for unknown ids.
func (r *SubscriptionRegistry) remove(id string) *subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.subs[id]
	delete(r.subs, id)
	return sub
}

func (r *SubscriptionRegistry) get(id string) *subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[id]
}

// Count returns the number of live subscriptions.
func (r *SubscriptionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
