package httpcache

import (
	"context"
	"net/http"
	"sync"
)

// Registry maps application-defined event names to the cache keys that must
// be dropped when the event fires. Key sets accumulate across routes that
// share an event name.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Atomicity: Invalidate consumes and clears the whole key set for an event;
//   no partial invalidation is observable through the registry.
type Registry struct {
	mu     sync.Mutex
	store  Store
	events map[string]map[string]struct{}
}

// NewRegistry creates a registry that deletes invalidated keys from store.
func NewRegistry(store Store) (*Registry, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &Registry{
		store:  store,
		events: make(map[string]map[string]struct{}),
	}, nil
}

// Register adds a key to the event's invalidation set.
func (reg *Registry) Register(event, key string) {
	if event == "" || key == "" {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	keys, ok := reg.events[event]
	if !ok {
		keys = make(map[string]struct{})
		reg.events[event] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate deletes every key registered under event from the store and
// clears the event's key set. Firing an event with no registered keys is a
// no-op. Returns the number of keys dropped.
func (reg *Registry) Invalidate(ctx context.Context, event string) int {
	reg.mu.Lock()
	keys := reg.events[event]
	delete(reg.events, event)
	reg.mu.Unlock()

	for key := range keys {
		_ = reg.store.Delete(ctx, key)
	}
	return len(keys)
}

// InvalidationTrigger wraps a mutation-route handler so that the configured
// events fire after the handler completes with a non-error status.
func InvalidationTrigger(reg *Registry, events []string, next http.Handler) (http.Handler, error) {
	if reg == nil {
		return nil, ErrNilStore
	}
	if next == nil {
		return nil, ErrNilHandler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		if sw.Status() < 400 {
			for _, event := range events {
				reg.Invalidate(r.Context(), event)
			}
		}
	}), nil
}
