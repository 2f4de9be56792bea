package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ewanmcc/fleetlink-core/internal/auth"
	"github.com/ewanmcc/fleetlink-core/internal/broadcast"
	"github.com/ewanmcc/fleetlink-core/internal/hub"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/logging"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
	"github.com/ewanmcc/fleetlink-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Auth     *auth.Authenticator
	Registry *registry.Registry
	Hub      *hub.Hub
	Relay    *relay.Relay
	Events   *broadcast.Broadcaster
	Version  string
}

// Server is the HTTP API server for Fleetlink Core.
//
// It manages the HTTP listener, routes, middleware, the operator feed and
// the device channel. The server is created with New() and started with
// Start().
type Server struct {
	cfg      config.ServerConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	auth     *auth.Authenticator
	registry *registry.Registry
	hub      *hub.Hub
	relay    *relay.Relay
	events   *broadcast.Broadcaster
	version  string
	server   *http.Server
	tickets  *ticketStore
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event broadcaster is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		auth:     deps.Auth,
		registry: deps.Registry,
		hub:      deps.Hub,
		relay:    deps.Relay,
		events:   deps.Events,
		version:  deps.Version,
		tickets:  newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the ticket cleanup loop, and launches the
// HTTP listener in a background goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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
