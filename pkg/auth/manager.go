package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/price-getter/pkg/client"
	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

var tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pricegetter_token_refreshes_total",
	Help: "Total client-credentials token requests by result",
}, []string{"result"})

const (
	// DefaultTokenPath is the retailer's OAuth2 token endpoint.
	DefaultTokenPath = "/connect/oauth2/token"

	// DefaultScope is requested when none is configured.
	DefaultScope = "product.compact"

	// DefaultSafetyMargin is subtracted from the advertised token lifetime.
	DefaultSafetyMargin = 60 * time.Second

	// DefaultLifetime applies when the token response omits expires_in.
	DefaultLifetime = 30 * time.Minute
)

// FormPoster sends the token request. *client.Client implements it.
type FormPoster interface {
	PostForm(ctx context.Context, path string, form url.Values, username, password string) (*client.Response, error)
}

// TokenSource supplies bearer tokens to the location and product clients.
// *Manager implements it.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)

	// Invalidate drops the current token after the retailer rejected it.
	Invalidate(ctx context.Context)
}

// Config holds token manager configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Scope        string

	TokenPath       string
	SafetyMargin    time.Duration
	DefaultLifetime time.Duration

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns the configuration used against the Kroger API.
func DefaultConfig(clientID, clientSecret, scope string) Config {
	if scope == "" {
		scope = DefaultScope
	}
	return Config{
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		Scope:           scope,
		TokenPath:       DefaultTokenPath,
		SafetyMargin:    DefaultSafetyMargin,
		DefaultLifetime: DefaultLifetime,
	}
}

// Manager hands out access tokens, refreshing through the client-credentials
// grant when the cached one is missing or about to expire.
type Manager struct {
	poster FormPoster
	cache  *TokenCache
	config Config
	clock  clockwork.Clock
	group  singleflight.Group
	logger zerolog.Logger
}

// NewManager creates a token manager. tokens is usually built with
// NewTokenCache using cfg.SafetyMargin.
func NewManager(poster FormPoster, tokens *TokenCache, cfg Config) (*Manager, error) {
	if poster == nil {
		return nil, fmt.Errorf("token poster is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token cache is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = DefaultLifetime
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Manager{
		poster: poster,
		cache:  tokens,
		config: cfg,
		clock:  cfg.Clock,
		logger: logging.NewLogger(logging.ComponentTokens),
	}, nil
}

// GetAccessToken returns a usable bearer token. A cache hit makes no network
// call. Concurrent misses share one token request.
// Failures are returned as *UpstreamAuthError and are not retried here.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if tok, ok := m.cache.Get(ctx); ok {
		m.logger.Debug().Msg("Access token cache hit")
		return tok.Value, nil
	}

	v, err, shared := m.group.Do(TokenKey.String(), func() (interface{}, error) {
		// A flight that finished just before this one may have filled the cache.
		if tok, ok := m.cache.Get(ctx); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug().Msg("Shared in-flight token refresh")
	}
	return v.(AccessToken).Value, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (m *Manager) Invalidate(ctx context.Context) {
	if err := m.cache.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to clear cached token")
		return
	}
	m.logger.Info().Msg("Access token invalidated")
}

func (m *Manager) refresh(ctx context.Context) (AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", m.config.Scope)

	resp, err := m.poster.PostForm(ctx, m.config.TokenPath, form, m.config.ClientID, m.config.ClientSecret)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("error").Inc()
		m.logger.Error().Err(err).Msg("Error fetching access token")
		return AccessToken{}, &UpstreamAuthError{Err: err}
	}

	tok, err := m.parse(resp.Body)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("invalid").Inc()
		m.logger.Error().Err(err).Msg("Unusable token response")
		return AccessToken{}, &UpstreamAuthError{Err: err}
	}

	if err := m.cache.Put(ctx, tok); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to cache access token")
	}

	tokenRefreshesTotal.WithLabelValues("success").Inc()
	m.logger.Info().
		Time("expires_at", tok.ExpiresAt).
		Msg("Obtained access token")

	return tok, nil
}

var errMissingAccessToken = errors.New("token response missing access_token")

func (m *Manager) parse(body []byte) (AccessToken, error) {
	if !gjson.ValidBytes(body) {
		return AccessToken{}, fmt.Errorf("token response is not valid JSON")
	}

	value := gjson.GetBytes(body, "access_token").String()
	if value == "" {
		return AccessToken{}, errMissingAccessToken
	}

	lifetime := m.config.DefaultLifetime
	if secs := gjson.GetBytes(body, "expires_in").Int(); secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}

	return AccessToken{
		Value:     value,
		ExpiresAt: m.clock.Now().Add(lifetime),
	}, nil
}
