package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// Name labels the store in metrics (token, location, ratelimit).
	Name string

	// MaxEntries bounds the store; 0 means unbounded. When full, expired
	// entries are dropped first, then the entry closest to expiry.
	MaxEntries int

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	name       string
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		name:       cfg.Name,
		maxEntries: cfg.MaxEntries,
		clock:      cfg.Clock,
		entries:    make(map[string]*Entry),
	}
}

// Get retrieves a live entry. Expired entries are removed and reported as
// ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[k]
	if !ok {
		CacheMisses.WithLabelValues(s.name).Inc()
		return nil, ErrCacheMiss
	}
	if entry.IsExpiredAt(s.clock.Now()) {
		delete(s.entries, k)
		CacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
		CacheMisses.WithLabelValues(s.name).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(s.name, layerMemory).Inc()
	copied := *entry
	return &copied, nil
}

// Set stores entry, replacing any previous value for key.
func (s *MemoryStore) Set(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	now := s.clock.Now()
	if entry.TTLAt(now) <= 0 {
		return nil
	}

	k := key.String()
	copied := *entry

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[k]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLocked(now)
	}
	s.entries[k] = &copied
	CacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))

	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key.String())
	CacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.sweepLocked(s.clock.Now())
	CacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	return removed
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for k, entry := range s.entries {
		if entry.IsExpiredAt(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// evictLocked makes room for one entry.
func (s *MemoryStore) evictLocked(now time.Time) {
	if s.sweepLocked(now) > 0 {
		return
	}

	var (
		oldestKey string
		oldest    time.Time
	)
	for k, entry := range s.entries {
		if oldestKey == "" || entry.Expires.Before(oldest) {
			oldestKey = k
			oldest = entry.Expires
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
