package auth

import (
	"fmt"
)

// UpstreamAuthError is returned when the client-credentials grant fails,
// either rejected by the retailer or never answered.
type UpstreamAuthError struct {
	Err error
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("failed to obtain access token: %v", e.Err)
}

func (e *UpstreamAuthError) Unwrap() error {
	return e.Err
}
