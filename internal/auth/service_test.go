package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func randomKeyHex(t *testing.T) string {
	t.Helper()

	key := make([]byte, EncryptionKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return hex.EncodeToString(key)
}

func testSettings(t *testing.T) Settings {
	t.Helper()

	return Settings{
		Algorithm: "HS256",
		Access: TokenSettings{
			Secret:          "access-signing-secret-for-tests-0001",
			LifetimeSeconds: 900,
			PayloadKeyHex:   randomKeyHex(t),
		},
		Refresh: TokenSettings{
			Secret:          "refresh-signing-secret-for-tests-0001",
			LifetimeSeconds: 2592000,
			PayloadKeyHex:   randomKeyHex(t),
		},
	}
}

func TestNewServiceRejectsSharedMaterial(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name: "shared signing secret",
			mutate: func(s *Settings) {
				s.Refresh.Secret = s.Access.Secret
			},
			wantErr: "must not share a signing secret",
		},
		{
			name: "shared encryption key",
			mutate: func(s *Settings) {
				s.Refresh.PayloadKeyHex = s.Access.PayloadKeyHex
			},
			wantErr: "must not share an encryption key",
		},
		{
			name: "payload key not hex",
			mutate: func(s *Settings) {
				s.Access.PayloadKeyHex = "not-hex"
			},
			wantErr: "payload key is not hex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testSettings(t)
			tt.mutate(&st)

			_, err := NewService(st)
			if err == nil {
				t.Fatal("NewService() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewService() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestServiceIssueAndValidate(t *testing.T) {
	svc, err := NewService(testSettings(t))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	userID := uuid.NewString()

	access, err := svc.IssueAccessToken(userID)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	refresh, err := svc.IssueRefreshToken(userID)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	if got, err := svc.ValidateAccessToken(access); err != nil || got != userID {
		t.Errorf("ValidateAccessToken() = (%q, %v), want (%q, nil)", got, err, userID)
	}
	if got, err := svc.ValidateRefreshToken(refresh); err != nil || got != userID {
		t.Errorf("ValidateRefreshToken() = (%q, %v), want (%q, nil)", got, err, userID)
	}
}

func TestServiceKindsAreNotInterchangeable(t *testing.T) {
	svc, err := NewService(testSettings(t))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	userID := uuid.NewString()

	access, err := svc.IssueAccessToken(userID)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	refresh, err := svc.IssueRefreshToken(userID)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	if _, err := svc.ValidateAccessToken(refresh); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("ValidateAccessToken(refresh token) error = %v, want ErrTokenMalformed", err)
	}
	if _, err := svc.ValidateRefreshToken(access); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("ValidateRefreshToken(access token) error = %v, want ErrTokenMalformed", err)
	}
}
