package httpcache

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// MaxKeyLength is the longest key stored verbatim; longer derived keys are
// replaced by a fixed-length hash (see DefaultKeyer).
const MaxKeyLength = 200

// Entry represents one cached response.
// Entries are immutable once stored; the store owns them exclusively.
type Entry struct {
	// Data is the response payload, optionally pre-compressed.
	Data []byte

	// Header holds the headers replayed verbatim on a hit.
	Header http.Header

	// StatusCode is the HTTP status captured at store time.
	StatusCode int

	// CreatedAt is the creation time, used only for diagnostics.
	CreatedAt time.Time

	// Fingerprint is the content hash of the uncompressed payload,
	// served as the ETag value.
	Fingerprint string

	// Compressed reports whether Data was passed through a Codec.
	Compressed bool
}

// Stats reports cumulative store statistics.
type Stats struct {
	// Size is the current number of resident entries.
	Size int

	// Hits and Misses count lookups over the store's lifetime.
	Hits   uint64
	Misses uint64

	// HitRate is Hits / (Hits + Misses), 0 when no lookups occurred.
	HitRate float64
}

// Store is the interface for caching HTTP responses.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Linearizability: operations on a single key must be linearizable.
// - Errors: Get never errors; it returns (Entry{}, false) on miss or expiry.
type Store interface {
	// Get retrieves a cached entry, counting a hit or miss.
	// A found entry counts as a touch for eviction ordering.
	Get(ctx context.Context, key string) (Entry, bool)

	// Set stores an entry with the given TTL. ttl<=0 uses the store default.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error

	// Delete removes an entry. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries. Lifetime hit/miss counters are retained.
	Clear(ctx context.Context) error

	// Stats returns cumulative statistics.
	Stats() Stats
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
