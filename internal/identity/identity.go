// Package identity resolves the caller of a request into an identity value
// and enforces per-endpoint authorisation policy.
//
// A caller is one of three variants: anonymous, a trusted system caller,
// or an authenticated user. Identities are constructed fresh per request
// from the bearer credential, handed downstream as read-only values, and
// never persisted or shared across requests.
package identity

import (
	"errors"

	"github.com/hallmont/identity-core/internal/auth"
)

// Identity is the resolved caller of a request.
//
// The zero value is the anonymous identity. A system identity has IsSystem
// set and no user record. An authenticated user carries the user row and
// the raw access token it presented.
type Identity struct {
	User        *auth.User
	IsSystem    bool
	AccessToken string
}

// IsAuthenticated reports whether the caller is a trusted system caller
// or an authenticated user. Anonymous callers are not authenticated.
func (i Identity) IsAuthenticated() bool {
	return i.IsSystem || i.User != nil
}

// Anonymous returns the anonymous identity.
func Anonymous() Identity {
	return Identity{}
}

// System returns the fully trusted system identity. It has no user record
// and bypasses role checks unconditionally.
func System() Identity {
	return Identity{IsSystem: true}
}

// Sentinel errors surfaced to the request boundary. The API layer maps all
// of them to user-safe unauthorised/forbidden responses; the distinction
// between malformed, tampered and invalid tokens stays internal.
var (
	// ErrAuthenticationRequired means no credential was presented and the
	// endpoint does not allow anonymous callers.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrMalformedCredential means the Authorization header is not of the
	// form "Bearer <token>".
	ErrMalformedCredential = errors.New("invalid access token format")

	// ErrAuthenticationExpired means the presented access token has expired.
	ErrAuthenticationExpired = errors.New("access token has expired")

	// ErrAuthenticationInvalid means the presented access token failed
	// validation for any reason other than expiry.
	ErrAuthenticationInvalid = errors.New("invalid access token")

	// ErrForbidden means the resolved identity does not hold a required role.
	ErrForbidden = errors.New("insufficient permissions")
)

// Policy is the per-endpoint authorisation policy.
type Policy struct {
	// AllowAnonymous permits requests without a credential (and requests
	// whose token refers to a user that no longer exists).
	AllowAnonymous bool

	// Roles, when non-empty, is the set of roles allowed through the gate.
	// System identities bypass the role check unconditionally.
	Roles []auth.Role
}

// Authorize applies the policy's role check to a resolved identity.
// It is a separate, composable step after resolution: an endpoint may
// resolve with one policy and authorise with another.
func (p Policy) Authorize(id Identity) error {
	if len(p.Roles) == 0 {
		return nil
	}
	if id.IsSystem {
		return nil
	}
	if id.User == nil {
		return ErrForbidden
	}
	for _, role := range p.Roles {
		if id.User.Role == role {
			return nil
		}
	}
	return ErrForbidden
}
