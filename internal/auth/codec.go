package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// Kind selects which secret/key/lifetime triple a codec operation uses.
type Kind int

// Token kinds. Access and refresh tokens are structurally identical but
// must never be interchangeable: each kind owns a disjoint signing secret
// and encryption key, so a token minted for one kind fails signature
// verification under the other.
const (
	KindAccess Kind = iota
	KindRefresh
)

// String returns the kind name for use in wrapped errors.
func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// EncryptionKeySize is the required size of a kind's payload encryption key.
const EncryptionKeySize = chacha20poly1305.KeySize

// minSealedSize is the smallest valid encrypted payload: nonce plus
// authentication tag with an empty plaintext.
const minSealedSize = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// KindSettings is the per-kind triple consumed by the codec.
type KindSettings struct {
	// SigningSecret signs the outer container.
	SigningSecret []byte

	// EncryptionKey encrypts the payload (XChaCha20-Poly1305, 32 bytes).
	EncryptionKey []byte

	// Lifetime is how long a freshly encoded token stays valid.
	Lifetime time.Duration
}

func (s KindSettings) validate(kind Kind) error {
	if len(s.SigningSecret) == 0 {
		return fmt.Errorf("%s token: signing secret is required", kind)
	}
	if len(s.EncryptionKey) != EncryptionKeySize {
		return fmt.Errorf("%s token: encryption key must be %d bytes, got %d",
			kind, EncryptionKeySize, len(s.EncryptionKey))
	}
	if s.Lifetime <= 0 {
		return fmt.Errorf("%s token: lifetime must be positive", kind)
	}
	return nil
}

// Payload is the content carried inside a token: the subject user ID.
// Both token kinds carry the same shape.
type Payload struct {
	UserID string `json:"user_id"`
}

// containerClaims is the wire form of the signed container: an absolute
// expiry and the hex-encoded encrypted payload.
type containerClaims struct {
	jwt.RegisteredClaims
	Payload string `json:"payload"`
}

// Codec envelope-encrypts token payloads and wraps them in a signed,
// time-limited container.
//
// Encoding serialises the payload to JSON, seals it with the kind's
// encryption key under a fresh random nonce (wire form nonce‖ciphertext‖tag,
// hex-encoded), then signs a container of {exp, payload} with the kind's
// signing secret. Decoding reverses the process, verifying the signature
// and expiry strictly before attempting decryption so that an expired or
// resigned token never exercises the cipher.
//
// Codec operations are pure CPU work; a Codec is safe for concurrent use.
type Codec struct {
	method jwt.SigningMethod
	kinds  map[Kind]KindSettings
	now    func() time.Time
}

// CodecOption configures optional Codec behaviour.
type CodecOption func(*Codec)

// WithTimeFunc overrides the codec's clock. Used by tests to probe expiry
// boundaries without sleeping.
func WithTimeFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec for the given signature algorithm and per-kind
// settings. Only HMAC algorithms are accepted: the same configuration
// supplies both the signing and verifying side.
func NewCodec(algorithm string, access, refresh KindSettings, opts ...CodecOption) (*Codec, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signature algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signature algorithm %q is not an HMAC method", algorithm)
	}

	if err := access.validate(KindAccess); err != nil {
		return nil, err
	}
	if err := refresh.validate(KindRefresh); err != nil {
		return nil, err
	}

	c := &Codec{
		method: method,
		kinds: map[Kind]KindSettings{
			KindAccess:  access,
			KindRefresh: refresh,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode serialises and envelope-encrypts the payload, then signs it into
// an opaque token string. The result is a pure function of the payload,
// the kind's settings, the current time and the random nonce.
func (c *Codec) Encode(kind Kind, p Payload) (string, error) {
	settings, ok := c.kinds[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %s", kind)
	}

	plaintext, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("serialising %s token payload: %w", kind, err)
	}

	aead, err := chacha20poly1305.NewX(settings.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("creating payload cipher: %w", err)
	}

	// Fresh nonce per encryption; the sealed wire form is nonce‖ciphertext‖tag.
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating payload nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	claims := containerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.now().Add(settings.Lifetime)),
		},
		Payload: hex.EncodeToString(sealed),
	}

	token, err := jwt.NewWithClaims(c.method, claims).SignedString(settings.SigningSecret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", kind, err)
	}
	return token, nil
}

// Decode verifies the container's signature and expiry, decrypts the
// embedded payload and deserialises it.
//
// Failures are typed: ErrTokenMalformed for signature or structural
// problems, ErrTokenExpired for a passed expiry, ErrTokenTampered when
// authenticated decryption fails on a correctly signed container, and
// ErrPayloadInvalid when the decrypted bytes don't form a valid payload.
func (c *Codec) Decode(kind Kind, token string) (Payload, error) {
	settings, ok := c.kinds[kind]
	if !ok {
		return Payload{}, fmt.Errorf("unknown token kind %s", kind)
	}

	claims := &containerClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return settings.SigningSecret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		// A bad signature outranks everything else, including expiry:
		// nothing inside an unauthenticated container can be trusted.
		return Payload{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Payload{}, fmt.Errorf("%w: %s token", ErrTokenExpired, kind)
	case err != nil:
		return Payload{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case !parsed.Valid:
		return Payload{}, ErrTokenMalformed
	}

	if claims.Payload == "" {
		return Payload{}, fmt.Errorf("%w: missing payload claim", ErrTokenMalformed)
	}
	sealed, err := hex.DecodeString(claims.Payload)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: payload claim is not hex", ErrTokenMalformed)
	}
	if len(sealed) < minSealedSize {
		return Payload{}, fmt.Errorf("%w: payload claim too short", ErrTokenMalformed)
	}

	aead, err := chacha20poly1305.NewX(settings.EncryptionKey)
	if err != nil {
		return Payload{}, fmt.Errorf("creating payload cipher: %w", err)
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %s token", ErrTokenTampered, kind)
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrPayloadInvalid, err)
	}
	if _, err := uuid.Parse(p.UserID); err != nil {
		return Payload{}, fmt.Errorf("%w: user_id is not a UUID", ErrPayloadInvalid)
	}

	return p, nil
}
