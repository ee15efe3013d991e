package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hallmont/identity-core/internal/audit"
	"github.com/hallmont/identity-core/internal/auth"
	"github.com/hallmont/identity-core/internal/identity"
	"github.com/hallmont/identity-core/internal/infrastructure/config"
	"github.com/hallmont/identity-core/internal/infrastructure/logging"
)

// testEnv is a fully wired server over a temp database, with a movable
// clock driving token expiry.
type testEnv struct {
	router  http.Handler
	db      *sql.DB
	users   auth.UserRepository
	devices auth.DeviceRepository
	audit   audit.Repository
	clock   *time.Time
}

const (
	testAccessLifetime  = 900
	testRefreshLifetime = 2592000
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			phone         TEXT,
			address       TEXT,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		) STRICT;

		CREATE TABLE devices (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			code          TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			UNIQUE (user_id, code),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE audit_logs (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			user_id     TEXT,
			email       TEXT,
			device_code TEXT,
			detail      TEXT,
			created_at  TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tokens, err := auth.NewService(auth.Settings{
		Algorithm: "HS256",
		Access: auth.TokenSettings{
			Secret:          "access-signing-secret-for-tests-0001",
			LifetimeSeconds: testAccessLifetime,
			PayloadKeyHex:   "1111111111111111111111111111111111111111111111111111111111111111",
		},
		Refresh: auth.TokenSettings{
			Secret:          "refresh-signing-secret-for-tests-0001",
			LifetimeSeconds: testRefreshLifetime,
			PayloadKeyHex:   "2222222222222222222222222222222222222222222222222222222222222222",
		},
	}, auth.WithTimeFunc(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("creating token service: %v", err)
	}

	users := auth.NewUserRepository(db)
	devices := auth.NewDeviceRepository(db)
	auditRepo := audit.NewRepository(db)
	resolver := identity.NewResolver(tokens, users)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
	}
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	server, err := New(Deps{
		Config:   cfg,
		Logger:   logger,
		Tokens:   tokens,
		Users:    users,
		Devices:  devices,
		Audit:    auditRepo,
		Resolver: resolver,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	return &testEnv{
		router:  server.buildRouter(),
		db:      db,
		users:   users,
		devices: devices,
		audit:   auditRepo,
		clock:   &clock,
	}
}

// createUser inserts a user with a real argon2id hash for the password.
func (e *testEnv) createUser(t *testing.T, email, password string, role auth.Role) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	user := &auth.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Role:         role,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return user
}

// do sends a JSON request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// login performs a login and returns the issued token pair.
func (e *testEnv) login(t *testing.T, email, password, deviceCode string) (access, refresh string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":       email,
		"password":    password,
		"device_code": deviceCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if resp.Data.Tokens.AccessToken == "" || resp.Data.Tokens.RefreshToken == "" {
		t.Fatal("login response is missing tokens")
	}
	return resp.Data.Tokens.AccessToken, resp.Data.Tokens.RefreshToken
}

// advance moves the injected clock forward.
func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

// newRawRequest builds a request with a verbatim Authorization header,
// for probing malformed credential forms that do() cannot produce.
func newRawRequest(method, path, authorization string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req, httptest.NewRecorder()
}

// errorCode extracts the "code" field of an error response body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error response %q: %v", rec.Body.String(), err)
	}
	return body.Code
}
