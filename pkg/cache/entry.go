package cache

import (
	"encoding/json"
	"time"
)

// timeNow is overridable in tests to simulate clock advancement.
var timeNow = time.Now

// Entry represents a cached value with its expiry metadata.
// The value is kept serialized so the storage tiers never need to know
// its shape; callers deserialize at the call site.
type Entry struct {
	// Value is the serialized payload.
	Value json.RawMessage `json:"value"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return timeNow().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := e.Expires.Sub(timeNow())
	if ttl < 0 {
		return 0
	}
	return ttl
}
