package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for extractor construction.
var (
	ErrMissingKey = errors.New("identity: signing key is required")
	ErrNilHandler = errors.New("identity: handler is nil")
)

// JWTConfig configures the JWT identity extractor.
type JWTConfig struct {
	// Key is the HMAC signing key used to verify tokens.
	Key []byte

	// HeaderName is the header containing the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string

	// PrincipalClaim is the claim containing the user principal.
	// Default: "sub"
	PrincipalClaim string

	// RoleClaim is the claim containing the user role.
	// Default: "role"
	RoleClaim string
}

// Extractor attaches a caller Identity to each request's context.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: extraction is attach-only; a bad token never rejects the request.
type Extractor struct {
	config JWTConfig
}

// NewExtractor creates a new identity extractor.
func NewExtractor(config JWTConfig) (*Extractor, error) {
	if len(config.Key) == 0 {
		return nil, ErrMissingKey
	}

	// Apply defaults
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	if config.PrincipalClaim == "" {
		config.PrincipalClaim = "sub"
	}
	if config.RoleClaim == "" {
		config.RoleClaim = "role"
	}

	return &Extractor{config: config}, nil
}

// Handler wraps next so that every request carries an Identity in its context.
func (e *Extractor) Handler(next http.Handler) (http.Handler, error) {
	if next == nil {
		return nil, ErrNilHandler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := e.Extract(r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	}), nil
}

// Extract builds the caller identity from the request.
// An absent or invalid token yields an anonymous identity.
func (e *Extractor) Extract(r *http.Request) *Identity {
	id := &Identity{ClientIP: ClientIP(r)}

	header := r.Header.Get(e.config.HeaderName)
	if header == "" || !strings.HasPrefix(header, e.config.TokenPrefix) {
		return id
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(header, e.config.TokenPrefix))
	if tokenString == "" {
		return id
	}

	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (interface{}, error) {
			return e.config.Key, nil
		},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	)
	if err != nil || !token.Valid {
		return id
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return id
	}

	if principal, ok := claims[e.config.PrincipalClaim].(string); ok {
		id.Principal = principal
	}

	// Role claim may be a string or the first element of a list.
	switch v := claims[e.config.RoleClaim].(type) {
	case string:
		id.Role = v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				id.Role = s
			}
		}
	}

	return id
}
