// Package auth obtains and caches the retailer API access token using the
// OAuth2 client-credentials grant.
package auth

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

// TokenKey is the single cache slot holding the access token.
var TokenKey = cache.Key{Namespace: cache.NamespaceToken, ID: "access"}

// AccessToken is a bearer credential for the retailer API.
type AccessToken struct {
	Value string `json:"value"`

	// ExpiresAt is the upstream-advertised expiry.
	ExpiresAt time.Time `json:"expires_at"`
}

// UsableAt reports whether the token may still be handed out at now, keeping
// margin in reserve so it cannot expire mid-flight.
func (t AccessToken) UsableAt(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// TokenCache holds at most one access token.
type TokenCache struct {
	store  cache.Store
	clock  clockwork.Clock
	margin time.Duration
	logger zerolog.Logger
}

// NewTokenCache wraps store. Tokens are evicted margin before they expire.
func NewTokenCache(store cache.Store, clock clockwork.Clock, margin time.Duration, logger zerolog.Logger) *TokenCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenCache{
		store:  store,
		clock:  clock,
		margin: margin,
		logger: logger,
	}
}

// Get returns the cached token if it is still usable. Store failures are
// logged and reported as a miss.
func (c *TokenCache) Get(ctx context.Context) (AccessToken, bool) {
	entry, err := c.store.Get(ctx, TokenKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Token cache read failed")
		}
		return AccessToken{}, false
	}

	var tok AccessToken
	if err := json.Unmarshal(entry.Value, &tok); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding corrupt cached token")
		return AccessToken{}, false
	}

	if !tok.UsableAt(c.clock.Now(), c.margin) {
		return AccessToken{}, false
	}
	return tok, true
}

// Put stores tok until margin before its expiry. A token whose lifetime is
// shorter than the margin is not cached at all.
func (c *TokenCache) Put(ctx context.Context, tok AccessToken) error {
	now := c.clock.Now()
	ttl := tok.ExpiresAt.Add(-c.margin).Sub(now)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	return c.store.Set(ctx, TokenKey, cache.NewEntry(data, ttl, now))
}

// Clear drops the cached token.
func (c *TokenCache) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, TokenKey)
}
