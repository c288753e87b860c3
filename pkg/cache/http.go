package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the fallback lifetime of a cached count.
const DefaultTTL = 30 * time.Second

// TTLFromHeaders derives a cache lifetime from response headers.
// Cache-Control no-store disables caching (0); max-age wins over Expires;
// without either, fallback is used.
func TTLFromHeaders(h http.Header, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(h.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		switch {
		case directive == "no-store":
			return 0
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}

	if expiresStr := h.Get("Expires"); expiresStr != "" {
		expires, err := http.ParseTime(expiresStr)
		if err != nil {
			return fallback
		}
		if ttl := time.Until(expires); ttl > 0 {
			return ttl
		}
		return 0
	}

	return fallback
}
