// Package location resolves ZIP codes to retailer store identifiers and
// caches the answer.
package location

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/price-getter/pkg/auth"
	"github.com/Sternrassler/price-getter/pkg/client"
	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// DefaultPath is the retailer's store-locator endpoint.
const DefaultPath = "/locations"

// Getter performs authenticated GET requests. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values, bearer string) (*client.Response, error)
}

// Resolver looks up the store nearest to a ZIP code.
type Resolver struct {
	api    Getter
	tokens auth.TokenSource
	cache  *Cache
	path   string
	group  singleflight.Group
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by locations.
func NewResolver(api Getter, tokens auth.TokenSource, locations *Cache) *Resolver {
	return &Resolver{
		api:    api,
		tokens: tokens,
		cache:  locations,
		path:   DefaultPath,
		logger: logging.NewLogger(logging.ComponentLocations),
	}
}

// Resolve returns the store id for zip. A cache hit makes no network call.
//
// ErrNoStore means the retailer has no store near zip; that outcome is not
// cached. Every other failure is an *UpstreamLocationError.
func (r *Resolver) Resolve(ctx context.Context, zip string) (string, error) {
	if entry, ok := r.cache.Get(ctx, zip); ok {
		r.logger.Debug().Str("zip", zip).Str("store_id", entry.StoreID).Msg("Location cache hit")
		return entry.StoreID, nil
	}

	v, err, _ := r.group.Do(zip, func() (interface{}, error) {
		if entry, ok := r.cache.Get(ctx, zip); ok {
			return entry.StoreID, nil
		}
		return r.lookup(ctx, zip)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) lookup(ctx context.Context, zip string) (string, error) {
	token, err := r.tokens.GetAccessToken(ctx)
	if err != nil {
		return "", &UpstreamLocationError{ZipCode: zip, Err: err}
	}

	query := url.Values{}
	query.Set("filter.zipCode.near", zip)
	query.Set("filter.limit", "1")

	resp, err := r.api.Get(ctx, r.path, query, token)
	if err != nil {
		var upErr *client.UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode == http.StatusUnauthorized {
			r.tokens.Invalidate(ctx)
		}
		r.logger.Error().Err(err).Str("zip", zip).Msg("Error fetching location")
		return "", &UpstreamLocationError{ZipCode: zip, Err: err}
	}

	if !gjson.ValidBytes(resp.Body) {
		return "", &UpstreamLocationError{ZipCode: zip, Err: fmt.Errorf("locations response is not valid JSON")}
	}

	storeID := gjson.GetBytes(resp.Body, "data.0.locationId").String()
	if storeID == "" {
		r.logger.Info().Str("zip", zip).Msg("No store found for ZIP code")
		return "", ErrNoStore
	}

	if _, err := r.cache.Put(ctx, zip, storeID); err != nil {
		r.logger.Warn().Err(err).Str("zip", zip).Msg("Failed to cache location")
	}

	r.logger.Info().Str("zip", zip).Str("store_id", storeID).Msg("Resolved store location")
	return storeID, nil
}
