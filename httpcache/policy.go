package httpcache

import (
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/httpkit/identity"
)

// Tier expresses cache freshness intent symbolically instead of in raw
// seconds. An explicit Config.TTL always takes priority over the tier.
type Tier string

const (
	TierNone   Tier = ""
	TierHigh   Tier = "high"   // rapidly changing data
	TierMedium Tier = "medium" // typical listing data
	TierLow    Tier = "low"    // near-static data
)

// TTL maps the tier to its concrete cache lifetime.
func (t Tier) TTL() time.Duration {
	switch t {
	case TierHigh:
		return 60 * time.Second
	case TierMedium:
		return 300 * time.Second
	case TierLow:
		return 1800 * time.Second
	default:
		return 0
	}
}

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierNone, TierHigh, TierMedium, TierLow:
		return true
	default:
		return false
	}
}

// RolePolicy makes caching conditional on the caller's role.
type RolePolicy struct {
	// SkipRoles lists roles whose requests bypass the cache entirely.
	SkipRoles []string

	// AllowRoles, when non-empty, restricts caching to the listed roles.
	AllowRoles []string
}

// Cacheable reports whether requests carrying the given role may be cached.
// Role matching is case-insensitive.
func (p RolePolicy) Cacheable(role string) bool {
	for _, skip := range p.SkipRoles {
		if strings.EqualFold(role, skip) {
			return false
		}
	}
	if len(p.AllowRoles) > 0 {
		for _, allow := range p.AllowRoles {
			if strings.EqualFold(role, allow) {
				return true
			}
		}
		return false
	}
	return true
}

// RoleConditional routes requests through the cached handler only when the
// role attached to the request context is cacheable under the policy; all
// other requests go straight to uncached.
func RoleConditional(policy RolePolicy, cached, uncached http.Handler) (http.Handler, error) {
	if cached == nil || uncached == nil {
		return nil, ErrNilHandler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := identity.RoleFromContext(r.Context())
		if policy.Cacheable(role) {
			cached.ServeHTTP(w, r)
			return
		}
		uncached.ServeHTTP(w, r)
	}), nil
}
