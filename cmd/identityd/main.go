// Identity Core - token-based authentication service
//
// This is the main entry point for the identity-core daemon. It wires
// together the token service, the user and device stores, the audit
// trail and the HTTP API, then waits for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/hallmont/identity-core/migrations"

	"github.com/hallmont/identity-core/internal/api"
	"github.com/hallmont/identity-core/internal/audit"
	"github.com/hallmont/identity-core/internal/auth"
	"github.com/hallmont/identity-core/internal/identity"
	"github.com/hallmont/identity-core/internal/infrastructure/config"
	"github.com/hallmont/identity-core/internal/infrastructure/database"
	"github.com/hallmont/identity-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting identity-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Token service. Secrets come straight from config and are never logged.
	tokens, err := auth.NewService(auth.Settings{
		Algorithm: cfg.Auth.JWTAlgorithm,
		Access: auth.TokenSettings{
			Secret:          cfg.Auth.AccessToken.Secret,
			LifetimeSeconds: cfg.Auth.AccessToken.LifetimeSeconds,
			PayloadKeyHex:   cfg.Auth.AccessToken.PayloadKey,
		},
		Refresh: auth.TokenSettings{
			Secret:          cfg.Auth.RefreshToken.Secret,
			LifetimeSeconds: cfg.Auth.RefreshToken.LifetimeSeconds,
			PayloadKeyHex:   cfg.Auth.RefreshToken.PayloadKey,
		},
	})
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	log.Info("token service initialised", "algorithm", cfg.Auth.JWTAlgorithm)

	// Persistence and identity resolution
	users := auth.NewUserRepository(db.DB)
	devices := auth.NewDeviceRepository(db.DB)
	auditRepo := audit.NewRepository(db.DB)
	resolver := identity.NewResolver(tokens, users)

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Tokens:   tokens,
		Users:    users,
		Devices:  devices,
		Audit:    auditRepo,
		Resolver: resolver,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server listening",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("identity-core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IDENTITYD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IDENTITYD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
