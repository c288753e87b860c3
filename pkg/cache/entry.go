// Package cache keeps collection counts and other small JSON results in Redis
// so that repeated fetches of the same filter set skip the count round trip.
//
// Counts are best-effort values anyway: a page plan derived from a cached
// count is as valid as one derived from a fresh count that raced with
// concurrent writers. Entries therefore carry a short TTL taken from the
// response's cache headers or a configured fallback.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.Key{
//		Kind:     "count",
//		Endpoint: "/measurement/measurements",
//		Query:    url.Values{"source": []string{"4711"}},
//	}
//
//	n, err := manager.GetCount(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// count remotely, then
//		_ = manager.SetCount(ctx, key, n, 30*time.Second)
//	}
//
// # Metrics
//
//   - c8y_cache_hits_total
//   - c8y_cache_misses_total
//   - c8y_cache_errors_total{operation}
//   - c8y_cache_stored_bytes_total
package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached JSON value.
type Entry struct {
	// Value is the cached JSON document.
	Value json.RawMessage `json:"value"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry marshals v into an entry expiring after ttl.
func NewEntry(v any, ttl time.Duration) (*Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Entry{Value: data, Expires: now.Add(ttl), CachedAt: now}, nil
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
