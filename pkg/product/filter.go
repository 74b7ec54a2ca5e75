package product

import (
	"fmt"
	"net/url"
	"strings"
)

// SearchFilter selects how the product code is sent to the catalog search.
type SearchFilter string

const (
	// FilterTerm searches by free text. The retailer rejects some valid
	// codes in exact mode, so this is the default.
	FilterTerm SearchFilter = "term"

	// FilterUPC searches by exact product id.
	FilterUPC SearchFilter = "upc"
)

// ParseSearchFilter parses a filter name, case-insensitively. Empty means
// FilterTerm.
func ParseSearchFilter(s string) (SearchFilter, error) {
	switch SearchFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterTerm:
		return FilterTerm, nil
	case FilterUPC:
		return FilterUPC, nil
	default:
		return "", fmt.Errorf("unknown product search filter %q (want term or upc)", s)
	}
}

// Query builds the search parameters for upc at storeID.
func (f SearchFilter) Query(upc, storeID string) url.Values {
	query := url.Values{}
	switch f {
	case FilterUPC:
		query.Set("filter.productId", upc)
	default:
		query.Set("filter.term", upc)
	}
	query.Set("filter.locationId", storeID)
	return query
}
