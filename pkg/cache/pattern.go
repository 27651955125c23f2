package cache

import (
	"regexp"
	"strings"
)

// The invalidation glob language supports exactly two metacharacters:
// '*' matches any run of characters and '?' matches a single character.
// Patterns are anchored, so "products:*" matches "products:all:1:20"
// but not "hot-products:all".
//
// The same pattern is executed against two backends: compiled to a
// regexp for the in-memory key list, and translated to a Redis MATCH
// pattern for the SCAN over the remote keyspace.

// compileGlob compiles a glob pattern into an anchored regexp.
func compileGlob(glob string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// redisMatch translates a glob into a Redis MATCH pattern.
// Redis patterns natively support '*' and '?', but additionally treat
// '[', ']' and '\' as special, so those are escaped.
func redisMatch(glob string) string {
	var sb strings.Builder
	for _, r := range glob {
		switch r {
		case '[', ']', '\\':
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
