// Package validate provides request admission checks for HTTP handlers.
//
// It rejects oversized bodies (413), disallowed content types (415), and
// abusive header shapes (400) before the request reaches the caching, rate
// limiting, or application layers.
package validate
