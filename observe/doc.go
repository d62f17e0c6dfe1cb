// Package observe provides observability primitives for HTTP middleware.
//
// It is a pure instrumentation library: no routing, no transport, no I/O
// beyond exporter setup. Consumers wire the observer into their handler
// chain alongside the httpcache and ratelimit middleware.
package observe
