package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a deterministic content hash over a response payload.
// Equal fingerprints imply byte-identical payloads with overwhelming
// probability; the value doubles as the ETag for conditional revalidation.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// etagValue formats a fingerprint as a quoted ETag header value.
func etagValue(fingerprint string) string {
	return `"` + fingerprint + `"`
}

// matchesETag reports whether an If-None-Match header value matches the
// stored fingerprint. Weak validators and quoting are tolerated; "*" matches
// any stored entry.
func matchesETag(header, fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		v := strings.TrimSpace(part)
		v = strings.TrimPrefix(v, "W/")
		v = strings.Trim(v, `"`)
		if v == "*" || v == fingerprint {
			return true
		}
	}
	return false
}
