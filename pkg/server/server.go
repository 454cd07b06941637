// Package server assembles the browsermcp process: it reclaims the executor
// port, starts the WebSocket listener, builds the correlation broker on top
// of it, and serves the browser tools to the agent over MCP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entrhq/browsermcp/pkg/backoff"
	"github.com/entrhq/browsermcp/pkg/broker"
	"github.com/entrhq/browsermcp/pkg/config"
	"github.com/entrhq/browsermcp/pkg/logging"
	"github.com/entrhq/browsermcp/pkg/metrics"
	"github.com/entrhq/browsermcp/pkg/port"
	"github.com/entrhq/browsermcp/pkg/tools/browser"
	"github.com/entrhq/browsermcp/pkg/transport"
)

// ShutdownTimeout bounds Shutdown when Run winds down.
const ShutdownTimeout = 15 * time.Second

// Config is everything the server needs for one run.
type Config struct {
	Name    string
	Version string

	Server config.ServerSettings

	KillExisting    bool
	ReclaimAttempts int
	ReclaimBackoff  backoff.Config

	AllowedURLs []string
	DeniedURLs  []string

	// Reclaimer replaces the port reclaimer built from the fields above
	Reclaimer transport.Reclaimer
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Name:    "browsermcp",
		Version: "dev",
		Server: config.ServerSettings{
			Host:           config.DefaultHost,
			Port:           config.DefaultPort,
			RequestTimeout: config.DefaultRequestTimeout,
			MaxConnections: config.DefaultMaxConnections,
			MetricsEnabled: true,
			WriteTimeout:   config.DefaultWriteTimeout,
		},
		KillExisting:    true,
		ReclaimAttempts: port.DefaultMaxAttempts,
		ReclaimBackoff:  backoff.DefaultConfig(),
	}
}

// ConfigFromGlobal reads the global configuration, falling back to
// DefaultConfig for any section that is not loaded.
func ConfigFromGlobal() Config {
	cfg := DefaultConfig()
	if s := config.GetServer(); s != nil {
		cfg.Server = s.Snapshot()
	}
	if s := config.GetPortReclaim(); s != nil {
		cfg.KillExisting, cfg.ReclaimAttempts = s.Settings()
		cfg.ReclaimBackoff = s.Backoff()
	}
	if s := config.GetNavigation(); s != nil {
		cfg.AllowedURLs, cfg.DeniedURLs = s.Patterns()
	}
	return cfg
}

// Server owns the listener, broker and MCP server for one process.
type Server struct {
	cfg      Config
	logger   *logging.Logger
	listener *transport.Listener
	broker   *broker.Broker
	mcp      *mcp.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a server without binding anything. logger may be nil.
func New(cfg Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Name == "" {
		cfg.Name = "browsermcp"
	}

	guard, err := browser.NewNavigationGuard(cfg.AllowedURLs, cfg.DeniedURLs)
	if err != nil {
		return nil, fmt.Errorf("server: navigation rules: %w", err)
	}

	reclaimer := cfg.Reclaimer
	if reclaimer == nil {
		reclaimer = port.New(port.Options{
			Host:         cfg.Server.Host,
			KillExisting: cfg.KillExisting,
			MaxAttempts:  cfg.ReclaimAttempts,
			Backoff:      cfg.ReclaimBackoff,
			Logger:       logger.With("port"),
		})
	}

	var metricsHandler http.Handler
	if cfg.Server.MetricsEnabled {
		metrics.RegisterMetrics()
		metricsHandler = metrics.Handler()
	}

	listener := transport.New(transport.Options{
		Host:           cfg.Server.Host,
		MaxConnections: cfg.Server.MaxConnections,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Reclaimer:      reclaimer,
		Logger:         logger.With("transport"),
		Metrics:        metricsHandler,
	})

	b := broker.New(listener, broker.Options{
		DefaultTimeout: cfg.Server.RequestTimeout,
		Logger:         logger.With("broker"),
	})

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	browser.Register(mcpServer, b, guard, browser.Options{
		DefaultTimeout: cfg.Server.RequestTimeout,
		Logger:         logger.With("tools"),
	})

	return &Server{
		cfg:      cfg,
		logger:   logger,
		listener: listener,
		broker:   b,
		mcp:      mcpServer,
	}, nil
}

// Start reclaims the configured port and starts accepting executors.
func (s *Server) Start(ctx context.Context) error {
	return s.listener.Start(ctx, s.cfg.Server.Port)
}

// Run starts the listener and serves MCP on t until the agent disconnects
// or ctx ends, then shuts down.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	s.logger.Infof("serving MCP (%s %s)", s.cfg.Name, s.cfg.Version)
	runErr := s.mcp.Run(ctx, t)
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, io.EOF) {
		runErr = nil
	}
	if runErr != nil {
		s.logger.Warnf("mcp session ended: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown closes the listener, which settles every pending call with
// ErrConnectionLost. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Infof("shutting down with %d pending calls", s.broker.Pending())
		s.shutdownErr = s.listener.Close(ctx)
	})
	return s.shutdownErr
}

// Addr is the executor listener address, or nil before Start.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Broker exposes the correlation broker.
func (s *Server) Broker() *broker.Broker { return s.broker }

// MCPServer exposes the tool server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }
