// Package embedapp runs a server for the duration of a test.
//
// An App is created by one of the factories, which differ only in how the root
// handler is supplied. Every factory starts from a launch builder with an
// ephemeral port, development mode on and no base dir; WithBaseDir swaps in a
// base dir, typically one produced by package basedir.
//
//	app := embedapp.FromHandler(http.HandlerFunc(hello))
//	defer app.Close()
//	u, err := app.Address()
//
// The server is built on the first call to Server and never started by it.
// Address starts it if needed. Close stops it and never fails: stop errors are
// logged, so cleanup cannot hide the failure a test is reporting.
package embedapp

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/interline-io/log"
	"github.com/interline-io/transitland-embed/handlers"
	"github.com/interline-io/transitland-embed/launch"
	"github.com/interline-io/transitland-embed/server"
	"github.com/interline-io/transitland-embed/vfs"
	"github.com/rs/zerolog"
)

// ConfigFunc builds a launch config from a preset builder.
type ConfigFunc func(*launch.Builder) (*launch.Config, error)

type Option func(*options)

type options struct {
	baseDir    vfs.Path
	hasBaseDir bool
	logger     *zerolog.Logger
}

// WithBaseDir serves from baseDir instead of having no base dir.
func WithBaseDir(baseDir vfs.Path) Option {
	return func(o *options) {
		o.baseDir = baseDir
		o.hasBaseDir = true
	}
}

// WithLogger sends the app's and its server's logs to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

func (o *options) builder() *launch.Builder {
	var b *launch.Builder
	if o.hasBaseDir {
		b = launch.BaseDir(o.baseDir)
	} else {
		b = launch.NoBaseDir()
	}
	if o.logger != nil {
		b = b.Logger(*o.logger)
	}
	return b.Development(true).Port(0)
}

// App owns a single server. It is single-use and not safe for concurrent use.
type App struct {
	id     string
	kind   string
	create func() (*launch.Config, error)
	built  bool
	server *server.Server
	err    error
	logger zerolog.Logger
}

func newApp(kind string, logger zerolog.Logger, create func() (*launch.Config, error)) *App {
	a := &App{
		id:     uuid.NewString(),
		kind:   kind,
		create: create,
	}
	a.logger = a.tagged(logger)
	return a
}

func (a *App) tagged(logger zerolog.Logger) zerolog.Logger {
	return logger.With().Str("app_id", a.id).Str("app_kind", a.kind).Logger()
}

// FromLaunchConfigBuilder creates an app whose config is built by fn.
func FromLaunchConfigBuilder(fn ConfigFunc, opts ...Option) *App {
	return fromConfigFunc("launch-config", fn, opts)
}

// FromHandlerFactory creates an app with a default config and the handler made by hf.
func FromHandlerFactory(hf launch.HandlerFactory, opts ...Option) *App {
	return fromHandlerFactory("handler-factory", hf, opts)
}

// FromHandler creates an app with a default config serving h.
func FromHandler(h http.Handler, opts ...Option) *App {
	if h == nil {
		return fromHandlerFactory("handler", nil, opts)
	}
	return fromHandlerFactory("handler", func(*launch.Config) (http.Handler, error) {
		return h, nil
	}, opts)
}

// FromChain creates an app with a default config serving a chi router defined by define.
func FromChain(define func(r chi.Router), opts ...Option) *App {
	return fromHandlerFactory("chain", func(cfg *launch.Config) (http.Handler, error) {
		return handlers.Chain(cfg, define)
	}, opts)
}

func fromHandlerFactory(kind string, hf launch.HandlerFactory, opts []Option) *App {
	return fromConfigFunc(kind, func(b *launch.Builder) (*launch.Config, error) {
		return b.Build(hf)
	}, opts)
}

func fromConfigFunc(kind string, fn ConfigFunc, opts []Option) *App {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := log.Logger.With().Logger()
	if o.logger != nil {
		logger = *o.logger
	}
	return newApp(kind, logger, func() (*launch.Config, error) {
		if fn == nil {
			return nil, errors.New("config function is nil")
		}
		cfg, err := fn(o.builder())
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, errors.New("config function returned nil config")
		}
		return cfg, nil
	})
}

// ID identifies the app in logs.
func (a *App) ID() string {
	return a.id
}

// Server returns the app's server, building it on the first call.
// It does not start the server. A build error is returned on every call.
func (a *App) Server() (*server.Server, error) {
	if !a.built {
		a.built = true
		cfg, err := a.create()
		if err != nil {
			a.err = fmt.Errorf("embedapp: create launch config: %w", err)
		} else {
			a.server = server.New(cfg)
		}
	}
	return a.server, a.err
}

// Address returns the server's base URL, starting the server if it is not running.
func (a *App) Address() (*url.URL, error) {
	srv, err := a.Server()
	if err != nil {
		return nil, err
	}
	if !srv.IsRunning() {
		if err := srv.Start(); err != nil {
			return nil, err
		}
	}
	return srv.Address()
}

// Close stops the server. Errors, including stopping a server that was never
// started, are logged and not returned; the result is always nil.
func (a *App) Close() error {
	srv, err := a.Server()
	if err == nil {
		err = srv.Stop()
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("embedapp: error stopping server")
	}
	return nil
}
