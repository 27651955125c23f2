// Package httpcache derives conditional-request and Cache-Control
// headers for API responses from a per-route policy table.
package httpcache

import (
	"fmt"
	"strings"
	"time"
)

// Policy describes the client-side caching behavior for a route.
type Policy struct {
	// MaxAge is the Cache-Control max-age directive.
	MaxAge time.Duration

	// Public marks the response cacheable by shared caches.
	Public bool

	// StaleWhileRevalidate allows serving stale content while a cache
	// revalidates in the background.
	StaleWhileRevalidate time.Duration

	// StaleIfError allows serving stale content when revalidation fails.
	StaleIfError time.Duration
}

// CacheControl renders the policy as a Cache-Control header value.
func (p Policy) CacheControl() string {
	parts := make([]string, 0, 4)
	if p.Public {
		parts = append(parts, "public")
	} else {
		parts = append(parts, "private")
	}
	parts = append(parts, fmt.Sprintf("max-age=%d", int(p.MaxAge.Seconds())))
	if p.StaleWhileRevalidate > 0 {
		parts = append(parts, fmt.Sprintf("stale-while-revalidate=%d", int(p.StaleWhileRevalidate.Seconds())))
	}
	if p.StaleIfError > 0 {
		parts = append(parts, fmt.Sprintf("stale-if-error=%d", int(p.StaleIfError.Seconds())))
	}
	return strings.Join(parts, ", ")
}

type rule struct {
	segments []string
	policy   Policy
}

// PolicyTable maps route patterns to policies. Patterns are literal
// paths whose segments may be `[id]`-style wildcards matching exactly
// one segment:
//
//	/api/products          matches /api/products only
//	/api/products/[id]     matches /api/products/p1 but not /api/products/p1/reviews
//
// Rules are evaluated in registration order; the first match wins.
type PolicyTable struct {
	rules []rule
}

// NewPolicyTable creates an empty policy table.
func NewPolicyTable() *PolicyTable {
	return &PolicyTable{}
}

// Add registers a pattern with its policy and returns the table for
// chaining.
func (t *PolicyTable) Add(pattern string, policy Policy) *PolicyTable {
	t.rules = append(t.rules, rule{
		segments: splitPath(pattern),
		policy:   policy,
	})
	return t
}

// Match returns the policy for the first pattern matching path.
func (t *PolicyTable) Match(path string) (Policy, bool) {
	segs := splitPath(path)

	for _, r := range t.rules {
		if matchSegments(r.segments, segs) {
			return r.policy, true
		}
	}
	return Policy{}, false
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
