// Package price orchestrates a price lookup: validate the request, resolve
// the ZIP code to a store, then fetch the product's price at that store.
package price

import (
	"context"
	"errors"
	"strings"

	"github.com/Sternrassler/price-getter/pkg/location"
	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var priceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pricegetter_price_requests_total",
	Help: "Total price lookups by outcome",
}, []string{"outcome"})

// Outcomes recorded in pricegetter_price_requests_total.
const (
	outcomeSuccess          = "success"
	outcomeInvalid          = "invalid"
	outcomeNoStore          = "no_store"
	outcomeNoProduct        = "no_product"
	outcomeUpstreamLocation = "upstream_location_error"
	outcomeUpstreamProduct  = "upstream_product_error"
)

// LocationResolver maps a ZIP code to a store id. *location.Resolver
// implements it.
type LocationResolver interface {
	Resolve(ctx context.Context, zip string) (string, error)
}

// PriceFetcher fetches a quote at a store. *product.Fetcher implements it.
type PriceFetcher interface {
	Fetch(ctx context.Context, upc, storeID string) (*product.Quote, error)
}

// Service runs price lookups.
type Service struct {
	locations LocationResolver
	products  PriceFetcher
	logger    zerolog.Logger
}

// NewService creates a lookup service.
func NewService(locations LocationResolver, products PriceFetcher) *Service {
	return &Service{
		locations: locations,
		products:  products,
		logger:    logging.NewLogger(logging.ComponentPrices),
	}
}

// Validate checks that both parameters are present.
func Validate(upc, zip string) error {
	var missing []string
	if strings.TrimSpace(upc) == "" {
		missing = append(missing, "upc")
	}
	if strings.TrimSpace(zip) == "" {
		missing = append(missing, "zip")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Lookup returns the current quote for upc near zip. Surrounding
// whitespace is stripped from both before any cache or upstream use.
//
// Errors are *ValidationError, *NotFoundError, or the resolver's and
// fetcher's upstream errors unchanged.
func (s *Service) Lookup(ctx context.Context, upc, zip string) (*product.Quote, error) {
	upc, zip = strings.TrimSpace(upc), strings.TrimSpace(zip)
	if err := Validate(upc, zip); err != nil {
		priceRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, err
	}

	storeID, err := s.ResolveStore(ctx, zip)
	if err != nil {
		return nil, err
	}
	return s.LookupAt(ctx, upc, zip, storeID)
}

// ResolveStore resolves zip, translating an empty answer into a
// *NotFoundError.
func (s *Service) ResolveStore(ctx context.Context, zip string) (string, error) {
	zip = strings.TrimSpace(zip)
	storeID, err := s.locations.Resolve(ctx, zip)
	if err != nil {
		if errors.Is(err, location.ErrNoStore) {
			priceRequestsTotal.WithLabelValues(outcomeNoStore).Inc()
			return "", &NotFoundError{Kind: NotFoundLocation, ZipCode: zip, Err: err}
		}
		priceRequestsTotal.WithLabelValues(outcomeUpstreamLocation).Inc()
		return "", err
	}
	return storeID, nil
}

// LookupAt fetches upc at an already resolved store.
func (s *Service) LookupAt(ctx context.Context, upc, zip, storeID string) (*product.Quote, error) {
	upc, zip = strings.TrimSpace(upc), strings.TrimSpace(zip)
	quote, err := s.products.Fetch(ctx, upc, storeID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			priceRequestsTotal.WithLabelValues(outcomeNoProduct).Inc()
			return nil, &NotFoundError{Kind: NotFoundProduct, UPC: upc, ZipCode: zip, StoreID: storeID, Err: err}
		}
		priceRequestsTotal.WithLabelValues(outcomeUpstreamProduct).Inc()
		return nil, err
	}

	priceRequestsTotal.WithLabelValues(outcomeSuccess).Inc()
	s.logger.Debug().Str("upc", upc).Str("zip", zip).Str("store_id", storeID).Msg("Price lookup succeeded")
	return quote, nil
}
