package cache

import (
	"time"
)

// Entry is a cached value with its expiry.
type Entry struct {
	// Value is the encoded payload (JSON for every caller in this module).
	Value []byte `json:"value"`

	// Expires is when the entry stops being served.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry that expires ttl after now.
func NewEntry(value []byte, ttl time.Duration, now time.Time) *Entry {
	return &Entry{
		Value:    value,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpiredAt reports whether the entry is stale at now.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTLAt returns the remaining lifetime at now, or 0 if already expired.
func (e *Entry) TTLAt(now time.Time) time.Duration {
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
