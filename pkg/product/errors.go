package product

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the search succeeded but yielded no product,
// or a product without purchasable items.
var ErrNotFound = errors.New("product not found")

// UpstreamProductError is returned when the product search itself failed.
type UpstreamProductError struct {
	UPC     string
	StoreID string
	Err     error
}

func (e *UpstreamProductError) Error() string {
	return fmt.Sprintf("failed to fetch product %s at store %s: %v", e.UPC, e.StoreID, e.Err)
}

func (e *UpstreamProductError) Unwrap() error {
	return e.Err
}
