package validate

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Default limits.
const (
	DefaultMaxBodyBytes   int64 = 10 * 1024 * 1024
	DefaultMaxHeaderBytes       = 64 * 1024
	DefaultMaxHeaderCount       = 200
)

// ErrNilHandler indicates a nil downstream handler was provided.
var ErrNilHandler = errors.New("validate: handler is nil")

// Limits configures request admission checks.
type Limits struct {
	// MaxBodyBytes bounds the request body size.
	MaxBodyBytes int64

	// AllowedContentTypes restricts body-bearing requests to the listed
	// media types. Empty means any type is accepted.
	AllowedContentTypes []string

	// MaxHeaderBytes bounds the combined size of all header names and values.
	MaxHeaderBytes int

	// MaxHeaderCount bounds the number of header fields.
	MaxHeaderCount int
}

// Default returns the default limits.
func Default() Limits {
	return Limits{
		MaxBodyBytes:   DefaultMaxBodyBytes,
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		MaxHeaderCount: DefaultMaxHeaderCount,
	}
}

// Validate checks the limits for consistency.
func (l Limits) Validate() error {
	if l.MaxBodyBytes <= 0 {
		return fmt.Errorf("validate: max body bytes must be positive")
	}
	if l.MaxHeaderBytes <= 0 {
		return fmt.Errorf("validate: max header bytes must be positive")
	}
	if l.MaxHeaderCount <= 0 {
		return fmt.Errorf("validate: max header count must be positive")
	}
	return nil
}

// bodyMethods are the methods whose requests carry a payload worth checking.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Middleware wraps next with the admission checks. Limit errors surface
// here, at registration time.
func Middleware(limits Limits, next http.Handler) (http.Handler, error) {
	if next == nil {
		return nil, ErrNilHandler
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.Header) > limits.MaxHeaderCount {
			http.Error(w, "too many header fields", http.StatusBadRequest)
			return
		}

		headerBytes := 0
		for name, values := range r.Header {
			headerBytes += len(name)
			for _, v := range values {
				headerBytes += len(v)
			}
		}
		if headerBytes > limits.MaxHeaderBytes {
			http.Error(w, "header block too large", http.StatusBadRequest)
			return
		}

		if bodyMethods[r.Method] {
			if r.ContentLength > limits.MaxBodyBytes {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			if len(limits.AllowedContentTypes) > 0 {
				mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || !allowedType(limits.AllowedContentTypes, mediaType) {
					http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
					return
				}
			}

			// Guard against bodies with understated or absent Content-Length.
			r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBodyBytes)
		}

		next.ServeHTTP(w, r)
	}), nil
}

func allowedType(allowed []string, mediaType string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, mediaType) {
			return true
		}
	}
	return false
}
