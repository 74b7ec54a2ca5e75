// Package cache provides the TTL stores behind the token and location caches.
//
// Two interchangeable Store implementations are available:
//
//   - MemoryStore: process-local map with per-entry expiry and an optional
//     entry bound. Time comes from a clockwork.Clock so tests can advance it.
//   - RedisStore: entries JSON-encoded in Redis with a matching Redis TTL,
//     shared by every gateway replica pointed at the same Redis.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(cache.MemoryConfig{MaxEntries: 10000})
//
//	key := cache.Key{Namespace: cache.NamespaceLocation, ID: "85016"}
//	entry := cache.NewEntry([]byte(`"01400943"`), 24*time.Hour, clock.Now())
//	if err := store.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// resolve upstream
//	}
//
// # Redis Backend
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient, cache.NamespaceLocation, nil)
//
// # Metrics
//
//   - pricegetter_cache_hits_total{cache,layer}
//   - pricegetter_cache_misses_total{cache}
//   - pricegetter_cache_errors_total{operation}
//   - pricegetter_cache_entries{cache} (memory layer only)
//
// Entries whose TTL is not positive are never stored. Expired entries are
// reported as ErrCacheMiss and removed on read.
package cache
