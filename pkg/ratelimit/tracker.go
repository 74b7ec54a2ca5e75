package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/price-getter/pkg/cache"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricegetter_rate_limit_cooldowns_total",
		Help: "Total number of cooldowns started by upstream 429 responses",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricegetter_rate_limit_blocks_total",
		Help: "Total number of outbound requests blocked during a cooldown",
	})
)

// Tracker monitors upstream rate limiting and gates requests.
type Tracker struct {
	store  cache.Store
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker. A nil clock means the real
// clock.
func NewTracker(store cache.Store, clock clockwork.Clock, logger zerolog.Logger) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// GetState retrieves the current rate limit state.
// Returns an unblocked state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	entry, err := t.store.Get(ctx, StateKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return &RateLimitState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	var state RateLimitState
	if err := json.Unmarshal(entry.Value, &state); err != nil {
		return nil, fmt.Errorf("parse rate limit state: %w", err)
	}
	return &state, nil
}

// UpdateFromResponse records a cooldown when the upstream answered 429 with
// a usable Retry-After header. Any other response is ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	if statusCode != http.StatusTooManyRequests {
		return nil
	}

	now := t.clock.Now()
	wait, ok := parseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		t.logger.Warn().Msg("Upstream rate limited without Retry-After, no cooldown recorded")
		return nil
	}
	if wait > MaxCooldown {
		wait = MaxCooldown
	}

	state := RateLimitState{
		BlockedUntil: now.Add(wait),
		LastStatus:   statusCode,
		LastUpdate:   now,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal rate limit state: %w", err)
	}

	if err := t.store.Set(ctx, StateKey, cache.NewEntry(data, wait, now)); err != nil {
		return fmt.Errorf("store rate limit state: %w", err)
	}

	rateLimitCooldownsTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", wait).
		Time("blocked_until", state.BlockedUntil).
		Msg("Upstream rate limit hit - cooling down")

	return nil
}

// ShouldAllowRequest reports whether an outbound request may be sent now.
// When blocked, the remaining cooldown is returned.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, err
	}

	now := t.clock.Now()
	if state.IsBlockedAt(now) {
		wait := state.TimeUntilResetAt(now)
		t.logger.Debug().
			Dur("wait_duration", wait).
			Msg("Upstream cooldown active - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	return true, 0, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
