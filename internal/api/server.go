// Package api provides the HTTP REST surface of identity-core.
//
// It exposes the login/refresh/logout flows, the caller's own profile,
// and admin access to the account list and audit trail. Every protected
// route runs through the identity gate, which resolves the bearer
// credential into an Identity value before the handler executes.
//
// The server follows the standard lifecycle pattern:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hallmont/identity-core/internal/audit"
	"github.com/hallmont/identity-core/internal/auth"
	"github.com/hallmont/identity-core/internal/identity"
	"github.com/hallmont/identity-core/internal/infrastructure/config"
	"github.com/hallmont/identity-core/internal/infrastructure/database"
	"github.com/hallmont/identity-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	DB       *database.DB
	Tokens   *auth.Service
	Users    auth.UserRepository
	Devices  auth.DeviceRepository
	Audit    audit.Repository
	Resolver *identity.Resolver
	Version  string
}

// Server is the HTTP API server for identity-core.
type Server struct {
	cfg      config.ServerConfig
	logger   *logging.Logger
	db       *database.DB
	tokens   *auth.Service
	users    auth.UserRepository
	devices  auth.DeviceRepository
	audit    audit.Repository
	resolver *identity.Resolver
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device ledger is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}

	return &Server{
		cfg:      deps.Config.Server,
		logger:   deps.Logger,
		db:       deps.DB,
		tokens:   deps.Tokens,
		users:    deps.Users,
		devices:  deps.Devices,
		audit:    deps.Audit,
		resolver: deps.Resolver,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections. The listener runs in a
// background goroutine; the server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
