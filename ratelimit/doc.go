// Package ratelimit provides fixed-window request throttling for HTTP handlers.
//
// A capacity-bounded in-memory store keeps one counter per limiting identity
// and window; a periodic sweep drops closed windows so memory stays bounded
// independent of request volume. The middleware derives the limiting identity
// from the caller (limiter class, client IP, principal) and rejects with 429
// plus Retry-After when the window's budget is spent.
package ratelimit
