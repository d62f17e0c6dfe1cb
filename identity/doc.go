// Package identity carries the caller identity consumed by the caching and
// rate limiting middleware.
//
// Identity is attached to the request context by upstream authentication
// middleware; this package only extracts and transports it. The JWT extractor
// is attach-only: a missing or invalid token yields an anonymous identity,
// never a rejection.
package identity
