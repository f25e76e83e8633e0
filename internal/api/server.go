package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/litemodel/internal/infrastructure/config"
	"github.com/nerrad567/litemodel/internal/infrastructure/logging"
	"github.com/nerrad567/litemodel/internal/model"
	"github.com/nerrad567/litemodel/internal/pool"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a component the health endpoint reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsSource reports pool occupancy. *pool.Pool satisfies it.
type StatsSource interface {
	Stats() pool.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Pool     StatsSource
	Registry *model.Registry

	// Checks are run by /health, keyed by component name.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP status server.
//
// It is created with New and started with Start.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	pool      StatsSource
	registry  *model.Registry
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
	server    *http.Server
	addr      net.Addr
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("model registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		pool:      deps.Pool,
		registry:  deps.Registry,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// A bind failure (port in use, bad host) is returned directly. The server
// can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.addr = ln.Addr()

	s.logger.Info("API server listening", "address", s.addr.String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
