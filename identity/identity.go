package identity

// Anonymous is the principal reported for unauthenticated callers.
const Anonymous = "anonymous"

// Identity represents the caller of a request.
type Identity struct {
	// Principal is the unique identifier (e.g., user ID, email).
	Principal string

	// Role is the caller's role as asserted by upstream authentication.
	Role string

	// ClientIP is the caller's network address.
	ClientIP string
}

// IsAnonymous reports whether the identity has no authenticated principal.
func (id *Identity) IsAnonymous() bool {
	return id == nil || id.Principal == ""
}
