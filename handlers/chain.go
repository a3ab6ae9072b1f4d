// Package handlers assembles root handlers for embedded servers.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/interline-io/transitland-embed/launch"
)

var ErrNoChain = errors.New("handlers: chain definition is nil")

type contextKey struct{}

var configKey = contextKey{}

// ConfigFromContext returns the launch config of the server handling the request.
func ConfigFromContext(ctx context.Context) *launch.Config {
	cfg, _ := ctx.Value(configKey).(*launch.Config)
	return cfg
}

// WithConfig stores cfg in each request context.
func WithConfig(cfg *launch.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), configKey, cfg)))
		})
	}
}

// Chain builds a chi router from a declarative definition.
// Handlers in the chain can reach cfg through ConfigFromContext.
func Chain(cfg *launch.Config, define func(r chi.Router)) (http.Handler, error) {
	if define == nil {
		return nil, ErrNoChain
	}
	r := chi.NewRouter()
	r.Use(WithConfig(cfg))
	define(r)
	return r, nil
}
