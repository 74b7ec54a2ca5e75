package location

import (
	"errors"
	"fmt"
)

// ErrNoStore is returned when the retailer answered but has no store near
// the ZIP code.
var ErrNoStore = errors.New("no store found for zip code")

// UpstreamLocationError is returned when the store lookup itself failed:
// token acquisition, transport, timeout or a non-2xx answer.
type UpstreamLocationError struct {
	ZipCode string
	Err     error
}

func (e *UpstreamLocationError) Error() string {
	return fmt.Sprintf("failed to resolve store for zip %s: %v", e.ZipCode, e.Err)
}

func (e *UpstreamLocationError) Unwrap() error {
	return e.Err
}
