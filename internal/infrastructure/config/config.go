// Package config loads and validates the identity-core configuration.
//
// Configuration is read from a YAML file, then overridden by environment
// variables, then validated. The resulting Config is loaded once at
// startup, injected into constructors and treated as read-only for the
// process lifetime.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for identity-core.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig contains the token protocol settings: the signature algorithm
// shared by both token kinds, and a disjoint secret/key/lifetime triple per
// kind. All values here are sensitive and must never be logged.
type AuthConfig struct {
	JWTAlgorithm string      `yaml:"jwt_algorithm"`
	AccessToken  TokenConfig `yaml:"access_token"`
	RefreshToken TokenConfig `yaml:"refresh_token"`
}

// TokenConfig contains the settings for one token kind.
type TokenConfig struct {
	// Secret signs the outer token container.
	Secret string `yaml:"secret"`

	// LifetimeSeconds is the token validity window.
	LifetimeSeconds int `yaml:"lifetime_seconds"`

	// PayloadKey is the hex-encoded 32-byte payload encryption key.
	PayloadKey string `yaml:"payload_key"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern IDENTITYD_SECTION_KEY, for
// example IDENTITYD_DATABASE_PATH or IDENTITYD_ACCESS_TOKEN_SECRET.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default lifetimes: 15 minutes for access tokens, 30 days for refresh.
const (
	defaultAccessLifetime  = 900
	defaultRefreshLifetime = 30 * 24 * 3600
)

// defaultConfig returns a Config with sensible defaults. Secrets and
// payload keys deliberately have no defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/identity.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			JWTAlgorithm: "HS256",
			AccessToken:  TokenConfig{LifetimeSeconds: defaultAccessLifetime},
			RefreshToken: TokenConfig{LifetimeSeconds: defaultRefreshLifetime},
		},
	}
}

// applyEnvOverrides applies environment variable overrides. Secrets are
// expected to arrive this way in production rather than living in the
// config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDENTITYD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("IDENTITYD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("IDENTITYD_ACCESS_TOKEN_SECRET"); v != "" {
		cfg.Auth.AccessToken.Secret = v
	}
	if v := os.Getenv("IDENTITYD_ACCESS_TOKEN_PAYLOAD_KEY"); v != "" {
		cfg.Auth.AccessToken.PayloadKey = v
	}
	if v := os.Getenv("IDENTITYD_REFRESH_TOKEN_SECRET"); v != "" {
		cfg.Auth.RefreshToken.Secret = v
	}
	if v := os.Getenv("IDENTITYD_REFRESH_TOKEN_PAYLOAD_KEY"); v != "" {
		cfg.Auth.RefreshToken.PayloadKey = v
	}
}

// Supported container signature algorithms.
var supportedAlgorithms = []string{"HS256", "HS384", "HS512"}

// minSecretLength is the minimum accepted signing secret length. Weak
// secrets would let an attacker forge identity tokens outright.
const minSecretLength = 32

// payloadKeyBytes is the required decoded size of a payload key.
const payloadKeyBytes = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	validAlg := false
	for _, alg := range supportedAlgorithms {
		if c.Auth.JWTAlgorithm == alg {
			validAlg = true
			break
		}
	}
	if !validAlg {
		errs = append(errs, fmt.Sprintf("auth.jwt_algorithm must be one of %s",
			strings.Join(supportedAlgorithms, ", ")))
	}

	errs = append(errs, c.Auth.AccessToken.validate("auth.access_token")...)
	errs = append(errs, c.Auth.RefreshToken.validate("auth.refresh_token")...)

	// The two kinds must never share key material: disjoint keys are what
	// stop an access token validating as a refresh token and vice versa.
	if c.Auth.AccessToken.Secret != "" && c.Auth.AccessToken.Secret == c.Auth.RefreshToken.Secret {
		errs = append(errs, "auth.access_token.secret and auth.refresh_token.secret must differ")
	}
	if c.Auth.AccessToken.PayloadKey != "" && c.Auth.AccessToken.PayloadKey == c.Auth.RefreshToken.PayloadKey {
		errs = append(errs, "auth.access_token.payload_key and auth.refresh_token.payload_key must differ")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks one token kind's settings, returning messages prefixed
// with the config section name.
func (t TokenConfig) validate(section string) []string {
	var errs []string

	if t.Secret == "" {
		errs = append(errs, section+".secret is required (set the IDENTITYD_*_SECRET environment variable)")
	} else if len(t.Secret) < minSecretLength {
		errs = append(errs, fmt.Sprintf("%s.secret must be at least %d characters", section, minSecretLength))
	}

	if t.LifetimeSeconds < 1 {
		errs = append(errs, section+".lifetime_seconds must be positive")
	}

	if t.PayloadKey == "" {
		errs = append(errs, section+".payload_key is required (set the IDENTITYD_*_PAYLOAD_KEY environment variable)")
	} else if key, err := hex.DecodeString(t.PayloadKey); err != nil || len(key) != payloadKeyBytes {
		errs = append(errs, fmt.Sprintf("%s.payload_key must be %d hex-encoded bytes", section, payloadKeyBytes))
	}

	return errs
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}
