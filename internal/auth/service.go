package auth

import (
	"encoding/hex"
	"fmt"
	"time"
)

// TokenSettings is the configuration surface for one token kind, as it
// arrives from the settings file: an opaque signing secret, a lifetime in
// seconds and a hex-encoded 32-byte payload encryption key.
type TokenSettings struct {
	Secret          string
	LifetimeSeconds int
	PayloadKeyHex   string
}

// Settings configures the Service. The signature algorithm is shared by
// both kinds; everything else is per kind and must be disjoint.
type Settings struct {
	Algorithm string
	Access    TokenSettings
	Refresh   TokenSettings
}

// Service issues and validates access and refresh tokens. It is a thin
// orchestration layer over the Codec: each operation selects the token
// kind and converts between user IDs and token payloads.
//
// The service never logs or persists raw tokens.
type Service struct {
	codec *Codec
}

// NewService creates a Service from configuration. It decodes the per-kind
// encryption keys and rejects settings where the two kinds share a signing
// secret or an encryption key, since disjoint key material is what makes
// the kinds non-interchangeable.
func NewService(st Settings, opts ...CodecOption) (*Service, error) {
	access, err := st.Access.kindSettings(KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := st.Refresh.kindSettings(KindRefresh)
	if err != nil {
		return nil, err
	}

	if st.Access.Secret == st.Refresh.Secret {
		return nil, fmt.Errorf("access and refresh tokens must not share a signing secret")
	}
	if st.Access.PayloadKeyHex == st.Refresh.PayloadKeyHex {
		return nil, fmt.Errorf("access and refresh tokens must not share an encryption key")
	}

	codec, err := NewCodec(st.Algorithm, access, refresh, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{codec: codec}, nil
}

func (ts TokenSettings) kindSettings(kind Kind) (KindSettings, error) {
	key, err := hex.DecodeString(ts.PayloadKeyHex)
	if err != nil {
		return KindSettings{}, fmt.Errorf("%s token: payload key is not hex: %w", kind, err)
	}
	return KindSettings{
		SigningSecret: []byte(ts.Secret),
		EncryptionKey: key,
		Lifetime:      time.Duration(ts.LifetimeSeconds) * time.Second,
	}, nil
}

// IssueAccessToken mints a short-lived access token for the user.
func (s *Service) IssueAccessToken(userID string) (string, error) {
	return s.codec.Encode(KindAccess, Payload{UserID: userID})
}

// IssueRefreshToken mints a long-lived, device-scoped refresh token for
// the user. The caller records it in the device ledger.
func (s *Service) IssueRefreshToken(userID string) (string, error) {
	return s.codec.Encode(KindRefresh, Payload{UserID: userID})
}

// ValidateAccessToken decodes an access token and returns the subject
// user ID. Token errors pass through typed (ErrTokenExpired and friends).
func (s *Service) ValidateAccessToken(token string) (string, error) {
	p, err := s.codec.Decode(KindAccess, token)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// ValidateRefreshToken decodes a refresh token and returns the subject
// user ID.
func (s *Service) ValidateRefreshToken(token string) (string, error) {
	p, err := s.codec.Decode(KindRefresh, token)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}
