package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/httpkit/observe"
)

// Store defaults.
const (
	DefaultMaxEntries    = 100000
	DefaultSweepInterval = 5 * time.Minute
)

// Result reports the outcome of one rate limit check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the budget left in the current window.
	Remaining int

	// ResetAt is when the current window closes.
	ResetAt time.Time

	// RetryAfter is how long a rejected caller should wait. Zero when allowed.
	RetryAfter time.Duration
}

// Store is the interface for fixed-window rate limit counters.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Linearizability: checks for a single key must be linearizable so limits
//   are exact.
// - Errors: a store error means the caller should fail open.
type Store interface {
	// CheckAndIncrement consumes one unit of the key's window budget, or
	// reports rejection without consuming when the budget is spent.
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// record is one fixed-window counter.
type record struct {
	count   int
	resetAt time.Time
}

// StoreConfig configures a MemoryStore.
type StoreConfig struct {
	// MaxEntries bounds the number of resident records.
	// Default: 100000
	MaxEntries int

	// SweepInterval is how often the background sweep drops closed windows.
	// Default: 5 minutes
	SweepInterval time.Duration
}

// MemoryStore is a capacity-bounded in-memory fixed-window counter table.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record

	maxEntries    int
	sweepInterval time.Duration
	logger        observe.Logger

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// NewMemoryStore creates a new in-memory rate limit store.
// The sweep does not run until Start is called.
func NewMemoryStore(cfg StoreConfig, logger observe.Logger) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &MemoryStore{
		records:       make(map[string]*record),
		maxEntries:    cfg.MaxEntries,
		sweepInterval: cfg.SweepInterval,
		logger:        logger,
	}
}

// CheckAndIncrement applies the fixed-window algorithm: a fresh or expired
// window starts a new record at count 1; within the window the count
// increments until the limit; at the limit the request is rejected without
// touching the window, so repeated rejections never extend it.
func (s *MemoryStore) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{}, ErrInvalidLimit
	}
	if window <= 0 {
		return Result{}, ErrInvalidWindow
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || now.After(rec.resetAt) {
		if !ok && len(s.records) >= s.maxEntries {
			s.sweepLocked(now)
			if len(s.records) >= s.maxEntries {
				// Table saturated with live windows: allow untracked
				// rather than reject legitimate traffic.
				return Result{
					Allowed:   true,
					Remaining: limit - 1,
					ResetAt:   now.Add(window),
				}, fmt.Errorf("ratelimit: record table full (%d entries)", len(s.records))
			}
		}

		resetAt := now.Add(window)
		s.records[key] = &record{count: 1, resetAt: resetAt}
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: resetAt}, nil
	}

	if rec.count < limit {
		rec.count++
		return Result{Allowed: true, Remaining: limit - rec.count, ResetAt: rec.resetAt}, nil
	}

	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    rec.resetAt,
		RetryAfter: rec.resetAt.Sub(now),
	}, nil
}

// Start launches the periodic sweep. Idempotent - a running sweep is left
// alone.
func (s *MemoryStore) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.sweepLoop(s.stop, s.done)
}

// Stop halts the periodic sweep and waits for the current pass to finish.
// Idempotent - safe to call twice or before Start.
func (s *MemoryStore) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func (s *MemoryStore) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweepPass()
		}
	}
}

// sweepPass runs one sweep, isolating failures so a bad pass never stops the
// timer.
func (s *MemoryStore) sweepPass() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "rate limit sweep failed",
				observe.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	removed := s.Sweep()
	if removed > 0 {
		s.logger.Debug(context.Background(), "rate limit sweep completed",
			observe.Field{Key: "removed", Value: removed})
	}
}

// Sweep deletes all records whose window has closed and returns how many
// were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(time.Now())
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for key, rec := range s.records {
		if now.After(rec.resetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the current number of resident records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
