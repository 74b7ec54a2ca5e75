// Package app builds the gateway's components once and wires them together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/price-getter/internal/config"
	"github.com/Sternrassler/price-getter/pkg/auth"
	"github.com/Sternrassler/price-getter/pkg/batch"
	"github.com/Sternrassler/price-getter/pkg/cache"
	"github.com/Sternrassler/price-getter/pkg/client"
	"github.com/Sternrassler/price-getter/pkg/location"
	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/Sternrassler/price-getter/pkg/price"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/Sternrassler/price-getter/pkg/ratelimit"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often RunSweeper purges expired in-memory
// entries.
const DefaultSweepInterval = 5 * time.Minute

// Options overrides collaborators, mostly for tests.
type Options struct {
	// Clock drives token, location and cooldown expiry for both cache
	// backends. Defaults to the real clock.
	Clock clockwork.Clock

	// HTTPClient replaces the upstream transport.
	HTTPClient *http.Client

	// Redis replaces the client built from Config.RedisURL.
	Redis *redis.Client
}

// App is the service context: every component is constructed here and
// passed explicitly to its users.
type App struct {
	Config config.Config

	Client    *client.Client
	Tokens    *auth.Manager
	Locations *location.Resolver
	Products  *product.Fetcher
	Prices    *price.Service
	Batch     *batch.Fetcher

	backend   cache.Store
	memory    []*cache.MemoryStore
	redis     *redis.Client
	ownsRedis bool
	clock     clockwork.Clock
	logger    zerolog.Logger
}

// New builds the service context from cfg. When cfg.RedisURL is set (or
// opts.Redis is given) the token, location and cooldown state live in Redis
// and are shared between replicas; otherwise they are held in memory.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	a := &App{
		Config: cfg,
		clock:  opts.Clock,
		logger: logging.NewLogger(logging.ComponentApp),
	}

	tokenStore, locationStore, rateStore, err := a.stores(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	tracker := ratelimit.NewTracker(rateStore, opts.Clock, logging.NewLogger(logging.ComponentRateLimit))

	clientCfg := client.DefaultConfig(cfg.BaseURL, cfg.UserAgent)
	clientCfg.Timeout = cfg.UpstreamTimeout
	clientCfg.Retry.MaxAttempts = cfg.UpstreamMaxAttempts
	clientCfg.RateLimiter = tracker
	clientCfg.HTTPClient = opts.HTTPClient

	a.Client, err = client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create retailer client: %w", err)
	}

	tokenCfg := auth.DefaultConfig(cfg.ClientID, cfg.ClientSecret, cfg.Scope)
	tokenCfg.SafetyMargin = cfg.TokenSafetyMargin
	tokenCfg.Clock = opts.Clock
	tokens := auth.NewTokenCache(tokenStore, opts.Clock, cfg.TokenSafetyMargin, logging.NewLogger(logging.ComponentTokenCache))

	a.Tokens, err = auth.NewManager(a.Client, tokens, tokenCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create token manager: %w", err)
	}

	locations := location.NewCache(locationStore, cfg.LocationCacheTTL, opts.Clock, logging.NewLogger(logging.ComponentLocationCache))
	a.Locations = location.NewResolver(a.Client, a.Tokens, locations)
	a.Products = product.NewFetcher(a.Client, a.Tokens, cfg.SearchFilter)
	a.Prices = price.NewService(a.Locations, a.Products)
	a.Batch = batch.NewFetcher(batch.Config{MaxConcurrency: cfg.BatchMaxConcurrency})

	return a, nil
}

func (a *App) stores(ctx context.Context, cfg config.Config, opts Options) (token, loc, rate cache.Store, err error) {
	rdb := opts.Redis
	if rdb == nil && cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		a.ownsRedis = true
	}

	if rdb != nil {
		a.redis = rdb
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.backend = cache.NewRedisStore(rdb, cache.NamespaceToken, opts.Clock)
		return a.backend,
			cache.NewRedisStore(rdb, cache.NamespaceLocation, opts.Clock),
			cache.NewRedisStore(rdb, cache.NamespaceRateLimit, opts.Clock),
			nil
	}

	tokenStore := cache.NewMemoryStore(cache.MemoryConfig{Name: cache.NamespaceToken, Clock: opts.Clock})
	locationStore := cache.NewMemoryStore(cache.MemoryConfig{
		Name:       cache.NamespaceLocation,
		MaxEntries: cfg.MemoryCacheMaxEntries,
		Clock:      opts.Clock,
	})
	rateStore := cache.NewMemoryStore(cache.MemoryConfig{Name: cache.NamespaceRateLimit, Clock: opts.Clock})

	a.backend = tokenStore
	a.memory = []*cache.MemoryStore{tokenStore, locationStore, rateStore}
	return tokenStore, locationStore, rateStore, nil
}

// SweepExpired purges expired entries from the in-memory stores and returns
// how many were removed. Redis expires keys on its own.
func (a *App) SweepExpired() int {
	removed, remaining := 0, 0
	for _, store := range a.memory {
		removed += store.Sweep()
		remaining += store.Len()
	}
	if removed > 0 {
		a.logger.Debug().
			Int("removed", removed).
			Int("remaining", remaining).
			Msg("Swept expired cache entries")
	}
	return removed
}

// RunSweeper calls SweepExpired every interval until ctx is done. It returns
// at once for the Redis backend.
func (a *App) RunSweeper(ctx context.Context, interval time.Duration) {
	if len(a.memory) == 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.SweepExpired()
		}
	}
}

// Ready reports whether the cache backend answers.
func (a *App) Ready(ctx context.Context) error {
	return a.backend.Ping(ctx)
}

// Close releases the Redis connection when the app opened it.
func (a *App) Close() error {
	if a.redis != nil && a.ownsRedis {
		return a.redis.Close()
	}
	return nil
}
