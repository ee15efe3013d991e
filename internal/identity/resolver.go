package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hallmont/identity-core/internal/auth"
)

// TokenValidator is the slice of the auth service the resolver consumes.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

// UserLookup is the read-only user access the resolver consumes.
// *auth.SQLiteUserRepository satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
}

// Resolver turns a request's bearer credential into an Identity.
type Resolver struct {
	tokens TokenValidator
	users  UserLookup
}

// NewResolver creates a resolver over the given token validator and user
// lookup.
func NewResolver(tokens TokenValidator, users UserLookup) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve runs the per-request identity state machine:
//
//  1. No credential → anonymous if the policy allows it, otherwise
//     ErrAuthenticationRequired.
//  2. Credential not of the form "Bearer <token>" (exactly two
//     space-separated parts, case-insensitive scheme) → ErrMalformedCredential.
//  3. Token validation failure → ErrAuthenticationExpired for an expired
//     container, ErrAuthenticationInvalid for everything else.
//  4. Token valid but the subject user no longer exists → treated as if no
//     credential were present: a stale token downgrades to anonymous rather
//     than erroring.
//  5. Otherwise the authenticated user, carrying the raw access token.
//
// The role check is not part of resolution; apply Policy.Authorize to the
// result.
func (r *Resolver) Resolve(ctx context.Context, authorizationHeader string, policy Policy) (Identity, error) {
	if authorizationHeader == "" {
		return r.anonymous(policy)
	}

	parts := strings.Split(authorizationHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Identity{}, ErrMalformedCredential
	}
	accessToken := parts[1]

	userID, err := r.tokens.ValidateAccessToken(accessToken)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationExpired, err)
	case err != nil:
		// Malformed, tampered and invalid-payload tokens all surface the
		// same way; the underlying cause stays wrapped for diagnostics.
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationInvalid, err)
	}

	user, err := r.users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return r.anonymous(policy)
	case err != nil:
		return Identity{}, fmt.Errorf("looking up token subject: %w", err)
	}

	return Identity{User: user, AccessToken: accessToken}, nil
}

// anonymous applies the policy's anonymous-allowed flag.
func (r *Resolver) anonymous(policy Policy) (Identity, error) {
	if policy.AllowAnonymous {
		return Anonymous(), nil
	}
	return Identity{}, ErrAuthenticationRequired
}
