package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyFunc derives the limiter key from a request.
type KeyFunc func(r *http.Request) string

// UserHeader carries the pre-verified user identity. Token verification
// happens upstream; by the time a request reaches this layer the header
// is trusted.
const UserHeader = "X-User-ID"

// ClientIP extracts the originating client IP, preferring the first
// X-Forwarded-For entry when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// PerIP keys unauthenticated traffic by client IP.
func PerIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return "ip:" + ClientIP(r, trustProxy)
	}
}

// PerUser keys authenticated traffic by user id, falling back to the
// client IP for anonymous requests.
func PerUser(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if user := strings.TrimSpace(r.Header.Get(UserHeader)); user != "" {
			return "user:" + user
		}
		return "ip:" + ClientIP(r, trustProxy)
	}
}

// PerEndpoint keys by endpoint path plus client IP, for protecting
// individual hot endpoints.
func PerEndpoint(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return "ep:" + r.URL.Path + ":" + ClientIP(r, trustProxy)
	}
}

// Middleware enforces the limiter on every request. Allowed responses
// carry advisory X-RateLimit-* headers; rejected requests receive
// HTTP 429 with a JSON body naming the retry-after delay in seconds.
func Middleware(l *Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			dec := l.Allow(key)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprint(dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(dec.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprint(int(dec.Reset.Seconds())))

			if !dec.Allowed {
				retryAfter := int(dec.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}

				l.logger.Warn().
					Str("key", key).
					Str("route", r.URL.Path).
					Int("retry_after", retryAfter).
					Msg("Rate limit exceeded")

				w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "too many requests",
					"retryAfter": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
