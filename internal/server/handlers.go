package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/price-getter/pkg/price"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/rs/zerolog/hlog"
)

// batchItem is one entry of a multi-UPC answer.
type batchItem struct {
	UPC     string         `json:"upc"`
	Status  int            `json:"status"`
	Quote   *product.Quote `json:"quote,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details string         `json:"details,omitempty"`
}

type batchResponse struct {
	Zip        string      `json:"zip"`
	LocationID string      `json:"locationId"`
	Results    []batchItem `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "NOT READY")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handlePrice serves GET /api/price?upc=<code>&zip=<zip>.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	upc, zip := query.Get("upc"), query.Get("zip")

	// The upstream calls run to completion or timeout even if the caller
	// goes away.
	ctx := context.WithoutCancel(r.Context())

	quote, err := s.prices.Lookup(ctx, upc, zip)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handlePrices serves GET /api/prices?zip=<zip>&upc=<a>&upc=<b>. Codes may
// also be comma-separated.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var upcs []string
	for _, v := range query["upc"] {
		upcs = append(upcs, strings.Split(v, ",")...)
	}

	status, body, err := s.LookupBatch(context.WithoutCancel(r.Context()), query.Get("zip"), upcs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, body)
}

// LookupBatch resolves zip once and looks up every code at that store.
// Request-level failures (validation, batch size, store resolution) are
// returned as err; per-code failures are reported inside the response.
func (s *Server) LookupBatch(ctx context.Context, zip string, upcs []string) (int, interface{}, error) {
	zip = strings.TrimSpace(zip)

	var codes []string
	for _, upc := range upcs {
		if upc = strings.TrimSpace(upc); upc != "" {
			codes = append(codes, upc)
		}
	}

	var first string
	if len(codes) > 0 {
		first = codes[0]
	}
	if err := price.Validate(first, zip); err != nil {
		return 0, nil, err
	}
	if len(codes) > s.batch.MaxItems() {
		return http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("Too many UPCs: at most %d per request.", s.batch.MaxItems()),
		}, nil
	}

	storeID, err := s.prices.ResolveStore(ctx, zip)
	if err != nil {
		return 0, nil, err
	}

	results := s.batch.FetchAll(ctx, codes, func(ctx context.Context, upc string) (*product.Quote, error) {
		return s.prices.LookupAt(ctx, upc, zip, storeID)
	})

	resp := batchResponse{Zip: zip, LocationID: storeID, Results: make([]batchItem, len(results))}
	for i, res := range results {
		item := batchItem{UPC: res.UPC, Status: http.StatusOK, Quote: res.Quote}
		if res.Err != nil {
			status, body := s.translate(res.Err)
			item = batchItem{UPC: res.UPC, Status: status, Error: body.Error, Details: body.Details}
		}
		resp.Results[i] = item
	}
	return http.StatusOK, resp, nil
}

// ErrorBody translates err into its HTTP status and JSON body.
func (s *Server) ErrorBody(err error) (int, interface{}) {
	return s.translate(err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := s.translate(err)

	logger := hlog.FromRequest(r)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error().Err(err).Int("status_code", status).Msg("Upstream failure")
	case status == http.StatusNotFound:
		logger.Info().Err(err).Msg("Lookup found nothing")
	default:
		logger.Debug().Err(err).Msg("Rejected request")
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
