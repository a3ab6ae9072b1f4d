// Package server runs an HTTP server described by a launch config.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/interline-io/transitland-embed/handlers"
	"github.com/interline-io/transitland-embed/launch"
	"github.com/interline-io/transitland-embed/metrics"
	"github.com/interline-io/transitland-embed/metrics/local"
	"github.com/interline-io/transitland-embed/metrics/prom"
	"github.com/interline-io/transitland-embed/otel"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRunning = errors.New("server: already running")
	ErrNotRunning     = errors.New("server: not running")
)

// Server is a startable, stoppable HTTP server.
// New does not run any user code; the handler factory is called by Start.
type Server struct {
	cfg     *launch.Config
	logger  zerolog.Logger
	mu      sync.Mutex
	srv     *http.Server
	done    chan struct{}
	port    int
	running bool
}

func New(cfg *launch.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger().With().Str("component", "server").Logger(),
	}
}

func (s *Server) Config() *launch.Config {
	return s.cfg
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// BindPort is the port the server listens on, or 0 if it is not running.
func (s *Server) BindPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return s.port
}

// Start creates the root handler and begins serving.
// It returns once the listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	hf := s.cfg.HandlerFactory()
	if hf == nil {
		return launch.ErrNoHandlerFactory
	}
	h, err := hf(s.cfg)
	if err != nil {
		return fmt.Errorf("server: create handler: %w", err)
	}
	if h == nil {
		return errors.New("server: handler factory returned nil handler")
	}
	h, err = s.wrap(h)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Address(), strconv.Itoa(s.cfg.Port()))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	_, sport, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return err
	}
	port, err := strconv.Atoi(sport)
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server: serve failed")
		}
	}()
	s.srv = srv
	s.done = done
	s.port = port
	s.running = true
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("development", s.cfg.IsDevelopment()).
		Msg("server: started")
	return nil
}

// Stop shuts the server down gracefully, bounded by the shutdown timeout.
// Connections still open after the timeout are closed.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	s.running = false
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()
	err := s.srv.Shutdown(ctx)
	if err != nil {
		s.srv.Close()
	}
	<-s.done
	s.srv = nil
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info().Int("port", s.port).Msg("server: stopped")
	return nil
}

// Address is the base URL of the running server.
func (s *Server) Address() (*url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrNotRunning
	}
	host := s.cfg.Address()
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(s.port))}, nil
}

func (s *Server) wrap(h http.Handler) (http.Handler, error) {
	var provider metrics.MetricProvider = local.NewDefaultMetric()
	if reg := s.cfg.MetricsRegisterer(); reg != nil {
		pm, err := prom.NewPromMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("server: register metrics: %w", err)
		}
		provider = pm
	}
	serviceName, tp := s.cfg.Tracing()
	handlerName := serviceName
	if handlerName == "" {
		handlerName = "embedded"
	}

	mws := chi.Middlewares{middleware.RequestID}
	if serviceName != "" {
		mws = append(mws, otel.NewMiddleware(serviceName, tp))
	}
	mws = append(mws, metrics.NewHTTPMiddleware(provider.NewApiMetric(handlerName)))
	if s.cfg.IsDevelopment() {
		mws = append(mws, handlers.RequestLogger(s.logger))
	}
	mws = append(mws, middleware.Recoverer)
	return mws.Handler(h), nil
}
