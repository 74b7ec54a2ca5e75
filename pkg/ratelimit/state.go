// Package ratelimit tracks the retailer API's rate-limit responses and gates
// outbound requests while the upstream has asked callers to back off.
//
// A 429 Too Many Requests answer carrying a Retry-After header starts a
// cooldown. The cooldown is kept in a cache.Store so every replica sharing a
// Redis backend backs off together.
package ratelimit

import (
	"time"

	"github.com/Sternrassler/price-getter/pkg/cache"
)

// StateKey is where the cooldown state lives.
var StateKey = cache.Key{Namespace: cache.NamespaceRateLimit, ID: "cooldown"}

// MaxCooldown caps how long a single Retry-After can block requests.
const MaxCooldown = 5 * time.Minute

// RateLimitState represents the current upstream rate-limit state.
type RateLimitState struct {
	// BlockedUntil is the end of the current cooldown. Zero when none.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the HTTP status that produced this state.
	LastStatus int `json:"last_status"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlockedAt reports whether requests must be held back at now.
func (s *RateLimitState) IsBlockedAt(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilResetAt returns the remaining cooldown at now, or 0.
func (s *RateLimitState) TimeUntilResetAt(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
