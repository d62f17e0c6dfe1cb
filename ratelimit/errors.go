package ratelimit

import "errors"

// Sentinel errors for rate limit configuration.
var (
	// ErrNilStore indicates a nil Store was provided.
	ErrNilStore = errors.New("ratelimit: store is nil")

	// ErrNilHandler indicates a nil downstream handler was provided.
	ErrNilHandler = errors.New("ratelimit: handler is nil")

	// ErrInvalidLimit indicates a limiter was configured with a non-positive limit.
	ErrInvalidLimit = errors.New("ratelimit: limit must be positive")

	// ErrInvalidWindow indicates a limiter was configured with a non-positive window.
	ErrInvalidWindow = errors.New("ratelimit: window must be positive")

	// ErrMissingName indicates a limiter was configured without a class name.
	ErrMissingName = errors.New("ratelimit: limiter name is required")
)
