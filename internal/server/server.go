package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultBodyLimit       = "1M"
)

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Addr    string // Server bind address (e.g., ":8090")
	DevMode bool   // Enable development mode (detailed error responses)
	APIKey  string // Optional API key for authentication

	ShutdownTimeout time.Duration // Grace period for in-flight requests; 10s when zero
	BodyLimit       string        // Max request body, echo size syntax; "1M" when empty
}

// ServerDeps contains dependencies required to create a new Server
type ServerDeps struct {
	Handlers *Handlers
	Config   ServerConfig
}

// Server wraps Echo with a lifecycle that also drains websocket feeds,
// which http.Server.Shutdown does not track once hijacked.
type Server struct {
	e      *echo.Echo
	cfg    ServerConfig
	logger *logrus.Logger

	stopFeeds context.CancelFunc // closes every live feed
	closeOnce sync.Once
	closed    chan struct{} // closed when Shutdown returns
}

// NewServer creates a new HTTP server with the given dependencies
func NewServer(deps ServerDeps) (*Server, error) {
	h := deps.Handlers
	if h == nil {
		return nil, errors.New("server: handlers are required")
	}
	cfg := deps.Config
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = defaultBodyLimit
	}
	if h.Logger == nil {
		h.Logger = logrus.New()
	}
	h.DevMode = cfg.DevMode

	feeds, stopFeeds := context.WithCancel(context.Background())
	h.feeds = feeds

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Handlers bound their own upstream calls, and websocket writes carry
	// per-message deadlines, so only header reads and idle keep-alives are capped here.
	e.Server.ReadHeaderTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	RegisterRoutes(e, h, cfg)

	return &Server{
		e:         e,
		cfg:       cfg,
		logger:    h.Logger,
		stopFeeds: stopFeeds,
		closed:    make(chan struct{}),
	}, nil
}

// Start begins serving HTTP requests on the configured address
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{
		"addr":       s.cfg.Addr,
		"dev_mode":   s.cfg.DevMode,
		"api_key":    s.cfg.APIKey != "",
		"body_limit": s.cfg.BodyLimit,
	}).Info("http server listening")
	return s.e.Start(s.cfg.Addr)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.e
}

// Shutdown closes live feeds, then waits up to ShutdownTimeout for in-flight
// requests. Calling it more than once is safe.
func (s *Server) Shutdown(ctx context.Context) error {
	err := errors.New("server: already shut down")
	s.closeOnce.Do(func() {
		defer close(s.closed)
		s.stopFeeds()

		ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
		start := time.Now()
		err = s.e.Shutdown(ctx)

		entry := s.logger.WithField("took", time.Since(start).Round(time.Millisecond))
		if err != nil {
			entry.WithError(err).Warn("http server shutdown incomplete")
			return
		}
		entry.Info("http server stopped")
	})
	return err
}

// WaitClosed blocks until the server is fully shut down or context times out
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// SetNoCacheHeaders middleware prevents caching of API responses
func SetNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

// SetJSONContentType middleware ensures all responses have JSON content type
func SetJSONContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return next(c)
	}
}
