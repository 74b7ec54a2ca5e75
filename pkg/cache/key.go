package cache

import (
	"strings"
)

// Namespaces used by the gateway.
const (
	NamespaceToken     = "token"
	NamespaceLocation  = "location"
	NamespaceRateLimit = "ratelimit"
)

// KeyPrefix is prepended to every key so a shared Redis can host other data.
const KeyPrefix = "pricegetter"

// Key identifies a cache entry.
type Key struct {
	// Namespace groups keys of one cache (token, location, ratelimit).
	Namespace string

	// ID is the entry identifier within the namespace (e.g. a ZIP code).
	ID string
}

// String generates the storage key.
// Format: pricegetter:namespace:id
//
// Example:
//
//	pricegetter:location:85016
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if ns := strings.TrimSpace(k.Namespace); ns != "" {
		parts = append(parts, ns)
	}
	if id := strings.TrimSpace(k.ID); id != "" {
		parts = append(parts, id)
	}

	return strings.Join(parts, ":")
}
