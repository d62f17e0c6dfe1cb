package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// KeyFunc derives a cache key from a request. A caller-supplied KeyFunc
// fully replaces the default derivation.
type KeyFunc func(r *http.Request) string

// Keyer generates deterministic cache keys from the request shape.
//
// Contract:
// - Determinism: same request shape must produce the same key, regardless of
//   query parameter order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key for the request.
	Key(r *http.Request) string
}

// DefaultKeyer derives keys from method, path, canonical query parameters,
// and the configured vary-by headers.
//
// Two requests that differ only in a header not listed in VaryBy map to the
// same key and therefore share a cached entry.
type DefaultKeyer struct {
	// VaryBy lists header names whose values partition the cache.
	// Order matters: the values are appended in the order given.
	VaryBy []string
}

// Key generates a deterministic cache key.
// Format: METHOD:PATH|canonical-query|header:value|...
// Keys longer than MaxKeyLength are replaced by a 128-bit SHA-256 prefix in
// hex, bounding key memory regardless of query complexity.
func (k *DefaultKeyer) Key(r *http.Request) string {
	var b strings.Builder

	b.WriteString(strings.ToUpper(r.Method))
	b.WriteString(":")
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	b.WriteString("|")
	b.WriteString(canonicalQuery(r))

	for _, name := range k.VaryBy {
		b.WriteString("|")
		b.WriteString(strings.ToLower(name))
		b.WriteString(":")
		b.WriteString(r.Header.Get(name))
	}

	key := b.String()
	if len(key) > MaxKeyLength {
		return hashKey(key)
	}
	return key
}

// canonicalQuery serializes query parameters independent of their order in
// the request: names are sorted, and values within a name are sorted too.
func canonicalQuery(r *http.Request) string {
	q := r.URL.Query()
	if len(q) == 0 {
		return ""
	}

	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		values := append([]string(nil), q[name]...)
		sort.Strings(values)
		for j, v := range values {
			if i > 0 || j > 0 {
				b.WriteString("&")
			}
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(v)
		}
	}
	return b.String()
}

// hashKey returns the 128-bit SHA-256 prefix of the key in hex.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
