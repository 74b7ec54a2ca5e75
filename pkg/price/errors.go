package price

import "fmt"

// ValidationError reports a missing request parameter. It never reaches the
// retailer.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required parameters: %v", e.Missing)
}

// NotFoundKind tells which lookup came back empty.
type NotFoundKind string

const (
	NotFoundLocation NotFoundKind = "location"
	NotFoundProduct  NotFoundKind = "product"
)

// NotFoundError is a legitimate empty result, as opposed to an upstream
// failure. StoreID is set for NotFoundProduct.
type NotFoundError struct {
	Kind    NotFoundKind
	UPC     string
	ZipCode string
	StoreID string
	Err     error
}

func (e *NotFoundError) Error() string {
	if e.Kind == NotFoundLocation {
		return fmt.Sprintf("no store found for zip %s", e.ZipCode)
	}
	return fmt.Sprintf("product %s not found at store %s", e.UPC, e.StoreID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}
