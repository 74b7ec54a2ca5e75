package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/price-getter/pkg/client"
	"github.com/Sternrassler/price-getter/pkg/price"
)

// MissingParamsMessage is returned for a request lacking upc or zip.
const MissingParamsMessage = "Missing required query parameters: upc and zip."

// errorResponse is the body of every non-200 API answer.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// translate maps a lookup failure to its HTTP status and body. It is the
// only place internal errors become part of the external contract.
func (s *Server) translate(err error) (int, errorResponse) {
	var (
		validation *price.ValidationError
		notFound   *price.NotFoundError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorResponse{Error: MissingParamsMessage}

	case errors.As(err, &notFound) && notFound.Kind == price.NotFoundLocation:
		return http.StatusNotFound, errorResponse{
			Error: fmt.Sprintf("No %s store found for ZIP code %s.", s.config.RetailerName, notFound.ZipCode),
		}

	case errors.As(err, &notFound):
		return http.StatusNotFound, errorResponse{
			Error: fmt.Sprintf("Product with UPC %s not found at the determined %s store (Location ID: %s).",
				notFound.UPC, s.config.RetailerName, notFound.StoreID),
		}

	default:
		return http.StatusBadGateway, errorResponse{
			Error:   fmt.Sprintf("Failed to retrieve data from %s.", s.config.RetailerName),
			Details: s.details(err),
		}
	}
}

// details is the diagnostic text attached to a 502.
func (s *Server) details(err error) string {
	if errors.Is(err, client.ErrTimeout) {
		return fmt.Sprintf("request to %s timed out after %s", s.config.RetailerName, s.config.UpstreamTimeout)
	}

	var upErr *client.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Details()
	}
	return err.Error()
}
