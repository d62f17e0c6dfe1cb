package httpcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store defaults.
const (
	DefaultCapacity = 10000
	DefaultTTL      = 15 * time.Minute
)

// StoreConfig configures a MemoryStore.
type StoreConfig struct {
	// Capacity is the maximum number of resident entries.
	// Default: 10000
	Capacity int

	// DefaultTTL is the TTL applied when Set receives ttl<=0.
	// Default: 15 minutes
	DefaultTTL time.Duration
}

// MemoryStore is a capacity- and time-bounded in-memory store with
// least-recently-used eviction.
type MemoryStore struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	ll         *list.List
	items      map[string]*list.Element
	hits       uint64
	misses     uint64
}

type memoryEntry struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store with the given configuration.
func NewMemoryStore(cfg StoreConfig) *MemoryStore {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	return &MemoryStore{
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get retrieves an entry. An expired entry is treated as absent and purged;
// stale entries are never served. A found entry moves to the
// most-recently-used position.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		s.misses++
		return Entry{}, false
	}

	me := el.Value.(*memoryEntry)
	if time.Now().After(me.expiresAt) {
		// Expired - purge lazily
		s.removeLocked(el)
		s.misses++
		return Entry{}, false
	}

	s.ll.MoveToFront(el)
	s.hits++
	return me.entry, true
}

// Set stores an entry, evicting the least-recently-used entry when the store
// is at capacity. ttl<=0 uses the store default.
func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		me := el.Value.(*memoryEntry)
		me.entry = entry
		me.expiresAt = expiresAt
		s.ll.MoveToFront(el)
		return nil
	}

	el := s.ll.PushFront(&memoryEntry{key: key, entry: entry, expiresAt: expiresAt})
	s.items[key] = el

	if s.ll.Len() > s.capacity {
		if oldest := s.ll.Back(); oldest != nil {
			s.removeLocked(oldest)
		}
	}
	return nil
}

// Delete removes an entry. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.removeLocked(el)
	}
	return nil
}

// Clear removes all entries, retaining lifetime hit/miss counters.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ll.Init()
	s.items = make(map[string]*list.Element)
	return nil
}

// Stats returns cumulative statistics.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Size:   s.ll.Len(),
		Hits:   s.hits,
		Misses: s.misses,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}

// Len returns the current number of resident entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	me := el.Value.(*memoryEntry)
	s.ll.Remove(el)
	delete(s.items, me.key)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
