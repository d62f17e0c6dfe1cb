// Package httpcache provides request-level response caching for HTTP handlers.
//
// It provides a bounded LRU Store with TTL expiry, deterministic key
// derivation from the request shape, content fingerprinting for conditional
// (ETag) revalidation, event-driven invalidation, and a middleware that
// orchestrates them around a single request/response cycle.
package httpcache
