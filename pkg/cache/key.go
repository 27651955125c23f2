package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key builds a deterministic namespace-prefixed cache key.
// Format: namespace:part1:part2:...
//
// Example:
//
//	Key("products", "all", "2", "20") -> "products:all:2:20"
func Key(namespace string, parts ...string) string {
	all := append([]string{namespace}, parts...)
	return strings.Join(all, ":")
}

// QueryKey builds a deterministic cache key from a namespace and query
// parameters. Parameters are sorted by name so logically identical
// requests always map to the same key.
//
// Example:
//
//	QueryKey("products", url.Values{"page": {"2"}, "limit": {"20"}})
//	-> "products:limit=20:page=2"
func QueryKey(namespace string, query url.Values) string {
	if len(query) == 0 {
		return namespace
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{namespace}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, query.Get(k)))
	}

	return strings.Join(parts, ":")
}

// PageKey builds a cache key for a paginated listing.
//
// Example:
//
//	PageKey("products", "all", 2, 20) -> "products:all:2:20"
func PageKey(namespace, listing string, page, pageSize int) string {
	return Key(namespace, listing, fmt.Sprint(page), fmt.Sprint(pageSize))
}
