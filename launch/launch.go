// Package launch holds the configuration used to start an embedded server.
//
// A Builder is created with either NoBaseDir or BaseDir, adjusted with chainable
// setters and turned into an immutable Config by Build. The Config carries the
// HandlerFactory that the server calls once, at start, to create its root handler.
package launch

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/interline-io/log"
	"github.com/interline-io/transitland-embed/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPort            = 5050
	DefaultShutdownTimeout = 5 * time.Second
)

var (
	ErrNoBaseDir        = errors.New("launch: no base dir set")
	ErrNoHandlerFactory = errors.New("launch: handler factory is nil")
)

// HandlerFactory creates the root handler from the resolved config.
type HandlerFactory func(cfg *Config) (http.Handler, error)

// Config is a built launch configuration. It is read-only.
type Config struct {
	baseDir         vfs.Path
	hasBaseDir      bool
	development     bool
	port            int
	address         string
	shutdownTimeout time.Duration
	registerer      prometheus.Registerer
	serviceName     string
	tracerProvider  trace.TracerProvider
	logger          *zerolog.Logger
	other           map[string]string
	handlerFactory  HandlerFactory
}

// BaseDir returns the base dir, or ErrNoBaseDir.
func (c *Config) BaseDir() (vfs.Path, error) {
	if !c.hasBaseDir {
		return vfs.Path{}, ErrNoBaseDir
	}
	return c.baseDir, nil
}

func (c *Config) HasBaseDir() bool {
	return c.hasBaseDir
}

func (c *Config) IsDevelopment() bool {
	return c.development
}

// Port is the requested port; 0 means the OS picks one.
func (c *Config) Port() int {
	return c.port
}

// Address is the bind host; empty means all interfaces.
func (c *Config) Address() string {
	return c.address
}

func (c *Config) ShutdownTimeout() time.Duration {
	return c.shutdownTimeout
}

func (c *Config) MetricsRegisterer() prometheus.Registerer {
	return c.registerer
}

// Tracing returns the service name used for spans and the tracer provider.
// An empty name means tracing is off; a nil provider means the global one.
func (c *Config) Tracing() (string, trace.TracerProvider) {
	return c.serviceName, c.tracerProvider
}

// Logger returns the configured logger, or the package default.
func (c *Config) Logger() zerolog.Logger {
	if c.logger != nil {
		return *c.logger
	}
	return log.Logger.With().Logger()
}

// Other returns a free-form setting.
func (c *Config) Other(key string) (string, bool) {
	v, ok := c.other[key]
	return v, ok
}

func (c *Config) HandlerFactory() HandlerFactory {
	return c.handlerFactory
}

// Builder assembles a Config.
type Builder struct {
	cfg Config
}

// NoBaseDir starts a builder without a base dir.
func NoBaseDir() *Builder {
	return &Builder{cfg: Config{
		port:            DefaultPort,
		shutdownTimeout: DefaultShutdownTimeout,
		other:           map[string]string{},
	}}
}

// BaseDir starts a builder serving from baseDir.
func BaseDir(baseDir vfs.Path) *Builder {
	b := NoBaseDir()
	b.cfg.baseDir = baseDir
	b.cfg.hasBaseDir = true
	return b
}

func (b *Builder) Development(development bool) *Builder {
	b.cfg.development = development
	return b
}

func (b *Builder) Port(port int) *Builder {
	b.cfg.port = port
	return b
}

func (b *Builder) Address(address string) *Builder {
	b.cfg.address = address
	return b
}

func (b *Builder) ShutdownTimeout(d time.Duration) *Builder {
	b.cfg.shutdownTimeout = d
	return b
}

// MetricsRegisterer enables request metrics registered with reg.
func (b *Builder) MetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.cfg.registerer = reg
	return b
}

// Tracing enables request spans named for serviceName.
// A nil tp uses the global tracer provider.
func (b *Builder) Tracing(serviceName string, tp trace.TracerProvider) *Builder {
	b.cfg.serviceName = serviceName
	b.cfg.tracerProvider = tp
	return b
}

func (b *Builder) Logger(logger zerolog.Logger) *Builder {
	b.cfg.logger = &logger
	return b
}

func (b *Builder) Other(key string, value string) *Builder {
	b.cfg.other[key] = value
	return b
}

// Build validates the settings and returns a Config using hf as the handler factory.
func (b *Builder) Build(hf HandlerFactory) (*Config, error) {
	if hf == nil {
		return nil, ErrNoHandlerFactory
	}
	if b.cfg.port < 0 || b.cfg.port > 65535 {
		return nil, fmt.Errorf("launch: invalid port %d", b.cfg.port)
	}
	if b.cfg.hasBaseDir && b.cfg.baseDir.FS == nil {
		return nil, fmt.Errorf("launch: base dir %q has no filesystem", b.cfg.baseDir.Name)
	}
	if b.cfg.shutdownTimeout <= 0 {
		return nil, fmt.Errorf("launch: invalid shutdown timeout %s", b.cfg.shutdownTimeout)
	}
	cfg := b.cfg
	cfg.other = make(map[string]string, len(b.cfg.other))
	for k, v := range b.cfg.other {
		cfg.other[k] = v
	}
	cfg.handlerFactory = hf
	return &cfg, nil
}
