// Package auth implements token issuance and validation for identity-core.
//
// Tokens use a two-layer construction:
//   - the payload (subject user ID) is encrypted with XChaCha20-Poly1305
//     under a per-kind key, nonce-prefixed and hex-encoded
//   - the ciphertext travels inside a signed, time-limited container
//     (HMAC-signed JWT carrying only exp and the payload claim)
//
// Access and refresh tokens are separate kinds with disjoint signing
// secrets, encryption keys and lifetimes, so a token minted for one kind
// can never validate as the other.
//
// The package also holds the device ledger (one active refresh token per
// user per device, uniqueness enforced by SQLite), the user repository
// surface the identity core consumes, and Argon2id password hashing.
package auth
