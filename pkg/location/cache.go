package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/price-getter/pkg/cache"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long a resolved store stays cached.
const DefaultTTL = 24 * time.Hour

// Entry maps a ZIP code to the nearest store.
type Entry struct {
	ZipCode  string    `json:"zip_code"`
	StoreID  string    `json:"store_id"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache holds resolved locations, one live entry per ZIP code.
type Cache struct {
	store  cache.Store
	ttl    time.Duration
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewCache wraps store. A non-positive ttl means DefaultTTL.
func NewCache(store cache.Store, ttl time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

func cacheKey(zip string) cache.Key {
	return cache.Key{Namespace: cache.NamespaceLocation, ID: zip}
}

// Get returns the cached entry for zip. Store failures count as a miss.
func (c *Cache) Get(ctx context.Context, zip string) (Entry, bool) {
	raw, err := c.store.Get(ctx, cacheKey(zip))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("zip", zip).Msg("Location cache read failed")
		}
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw.Value, &entry); err != nil || entry.StoreID == "" {
		c.logger.Warn().Str("zip", zip).Msg("Discarding corrupt location entry")
		return Entry{}, false
	}
	return entry, true
}

// Put caches storeID for zip for the configured TTL, replacing any
// previous entry.
func (c *Cache) Put(ctx context.Context, zip, storeID string) (Entry, error) {
	now := c.clock.Now()
	entry := Entry{ZipCode: zip, StoreID: storeID, CachedAt: now}

	data, err := json.Marshal(entry)
	if err != nil {
		return entry, fmt.Errorf("marshal location entry: %w", err)
	}
	if err := c.store.Set(ctx, cacheKey(zip), cache.NewEntry(data, c.ttl, now)); err != nil {
		return entry, err
	}
	return entry, nil
}
