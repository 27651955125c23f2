package httpcache

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// notModifiedResponses counts conditional GETs answered with 304.
	notModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_http_304_responses_total",
			Help: "Total conditional requests answered with 304 Not Modified",
		},
	)
)

// ETagFor computes the content fingerprint used as the ETag. The hash
// depends only on the body bytes, so unchanged content always yields
// the same tag.
func ETagFor(body []byte) string {
	sum := sha1.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// etagMatches implements If-None-Match comparison: a literal `*`
// matches anything, otherwise any listed tag must equal ours.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// Middleware annotates successful GET responses with an ETag and, when
// the route has a policy, a Cache-Control header. A request whose
// If-None-Match matches the computed ETag short-circuits to 304 with an
// empty body. Responses to non-GET requests pass through untouched.
func Middleware(table *PolicyTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			rec := &captureWriter{header: make(http.Header), status: http.StatusOK}
			next.ServeHTTP(rec, r)

			body := rec.body.Bytes()

			// Only successful responses with content are annotated.
			if rec.status < 200 || rec.status >= 300 || len(body) == 0 {
				rec.copyTo(w)
				return
			}

			etag := ETagFor(body)

			for name, values := range rec.header {
				w.Header()[name] = values
			}
			w.Header().Set("ETag", etag)
			w.Header().Set("Vary", "Accept-Encoding")
			if policy, ok := table.Match(r.URL.Path); ok {
				w.Header().Set("Cache-Control", policy.CacheControl())
			}

			if etagMatches(r.Header.Get("If-None-Match"), etag) {
				notModifiedResponses.Inc()
				w.WriteHeader(http.StatusNotModified)
				return
			}

			w.WriteHeader(rec.status)
			_, _ = w.Write(body)
		})
	}
}

// captureWriter buffers the handler's response so the annotator can
// inspect the outcome before any bytes reach the client.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
	wrote  bool
}

func (c *captureWriter) Header() http.Header {
	return c.header
}

func (c *captureWriter) WriteHeader(status int) {
	if c.wrote {
		return
	}
	c.wrote = true
	c.status = status
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	return c.body.Write(b)
}

func (c *captureWriter) copyTo(w http.ResponseWriter) {
	for name, values := range c.header {
		w.Header()[name] = values
	}
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body.Bytes())
}
