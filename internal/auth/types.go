package auth

import (
	"errors"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular account holder. Can read their own profile
	// and manage their own device sessions.
	RoleUser Role = "user"

	// RoleAdmin can additionally list accounts and read the audit trail.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a user account may hold.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if the role is a valid role for a user account.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an account row. The identity core only ever reads it by
// primary key or by unique email; mutation belongs to the user management
// surface.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Device records one logged-in device for a user. The pair (UserID, Code)
// is unique across all rows — at most one active refresh token per user per
// device — enforced by the devices table's UNIQUE constraint, not by
// check-then-insert in application code.
type Device struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Code         string    `json:"code"`
	RefreshToken string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sentinel errors for token and ledger operations. The token errors are
// deliberately fine-grained for diagnostics; callers presenting them to a
// client must collapse them into a generic "invalid authentication" so that
// signature and decryption failures are indistinguishable from outside.
var (
	// ErrTokenExpired means the signed container's expiry has passed.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenMalformed means the signature or the container structure
	// failed verification.
	ErrTokenMalformed = errors.New("malformed token")

	// ErrTokenTampered means the container verified but authenticated
	// decryption of the embedded payload failed.
	ErrTokenTampered = errors.New("token payload failed authentication")

	// ErrPayloadInvalid means the decrypted payload does not have the
	// expected shape.
	ErrPayloadInvalid = errors.New("invalid token payload")

	// ErrInvalidCredentials means the presented email/password pair did
	// not match an account.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound means no user row matched the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailExists means an account with the given email already exists.
	ErrEmailExists = errors.New("email already registered")

	// ErrDeviceNotFound means no device row matched the lookup.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceConflict means a device row for the same (user, code) pair
	// already exists. The ledger never resolves this silently; the login
	// flow decides whether to replace the stored refresh token or reject.
	ErrDeviceConflict = errors.New("device already registered for user")
)
