package httpcache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrNilStore indicates a nil Store was provided.
	ErrNilStore = errors.New("httpcache: store is nil")

	// ErrNilHandler indicates a nil downstream handler was provided.
	ErrNilHandler = errors.New("httpcache: handler is nil")

	// ErrInvalidKey indicates a cache key is empty or malformed.
	ErrInvalidKey = errors.New("httpcache: key is invalid")

	// ErrNegativeTTL indicates a route was configured with a negative TTL.
	ErrNegativeTTL = errors.New("httpcache: ttl must not be negative")

	// ErrUnknownTier indicates a route was configured with an unknown freshness tier.
	ErrUnknownTier = errors.New("httpcache: unknown freshness tier")

	// ErrNoCodec indicates compression was requested without a codec.
	ErrNoCodec = errors.New("httpcache: compression enabled without codec")

	// ErrNoRegistry indicates invalidation events were configured without a registry.
	ErrNoRegistry = errors.New("httpcache: invalidation events configured without registry")
)
