// Package product queries the retailer catalog for a product's price at a
// store.
package product

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
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// DefaultPath is the retailer's product search endpoint.
const DefaultPath = "/products"

// Getter performs authenticated GET requests. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values, bearer string) (*client.Response, error)
}

// Fetcher looks up prices. Results are never cached.
type Fetcher struct {
	api    Getter
	tokens auth.TokenSource
	filter SearchFilter
	path   string
	logger zerolog.Logger
}

// NewFetcher creates a fetcher using filter for catalog searches.
func NewFetcher(api Getter, tokens auth.TokenSource, filter SearchFilter) *Fetcher {
	if filter == "" {
		filter = FilterTerm
	}
	return &Fetcher{
		api:    api,
		tokens: tokens,
		filter: filter,
		path:   DefaultPath,
		logger: logging.NewLogger(logging.ComponentProducts),
	}
}

// Fetch returns the quote for upc at storeID. ErrNotFound means the
// catalog has no purchasable match; every other failure is an
// *UpstreamProductError.
func (f *Fetcher) Fetch(ctx context.Context, upc, storeID string) (*Quote, error) {
	token, err := f.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, &UpstreamProductError{UPC: upc, StoreID: storeID, Err: err}
	}

	resp, err := f.api.Get(ctx, f.path, f.filter.Query(upc, storeID), token)
	if err != nil {
		var upErr *client.UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode == http.StatusUnauthorized {
			f.tokens.Invalidate(ctx)
		}
		f.logger.Error().Err(err).Str("upc", upc).Str("store_id", storeID).Msg("Error fetching product")
		return nil, &UpstreamProductError{UPC: upc, StoreID: storeID, Err: err}
	}

	quote, err := extractQuote(resp.Body, upc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.logger.Info().Str("upc", upc).Str("store_id", storeID).Msg("Product not found at store")
			return nil, err
		}
		return nil, &UpstreamProductError{UPC: upc, StoreID: storeID, Err: err}
	}

	f.logger.Debug().Str("upc", quote.UPC).Str("store_id", storeID).Msg("Fetched price")
	return quote, nil
}

// extractQuote reads the first product and its first item from a search
// response.
func extractQuote(body []byte, requested string) (*Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("products response is not valid JSON")
	}

	product := gjson.GetBytes(body, "data.0")
	if !product.IsObject() {
		return nil, ErrNotFound
	}
	item := product.Get("items.0")
	if !item.IsObject() {
		return nil, ErrNotFound
	}

	quote := &Quote{
		UPC:         product.Get("upc").String(),
		Brand:       product.Get("brand").String(),
		Description: product.Get("description").String(),
	}
	if quote.UPC == "" {
		quote.UPC = requested
	}
	if quote.Brand == "" {
		quote.Brand = UnknownBrand
	}

	regular, err := decimalField(item.Get("price.regular"))
	if err != nil {
		return nil, fmt.Errorf("regular price: %w", err)
	}
	promo, err := decimalField(item.Get("price.promo"))
	if err != nil {
		return nil, fmt.Errorf("promo price: %w", err)
	}

	quote.Price.Regular = regular
	if promo.Valid {
		quote.Price.Promo = promo.Decimal
	}
	return quote, nil
}

// decimalField parses a numeric JSON field keeping its exact text. Absent,
// null and empty fields are reported as invalid without error.
func decimalField(res gjson.Result) (decimal.NullDecimal, error) {
	switch res.Type {
	case gjson.Null:
		return decimal.NullDecimal{}, nil
	case gjson.Number, gjson.String:
		text := res.Raw
		if res.Type == gjson.String {
			if res.Str == "" {
				return decimal.NullDecimal{}, nil
			}
			text = res.Str
		}
		d, err := decimal.NewFromString(text)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("unexpected %s value %s", res.Type, res.Raw)
	}
}
