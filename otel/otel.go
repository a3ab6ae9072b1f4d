// Package otel provides OpenTelemetry tracing for embedded servers.
//
// Tracing is off unless a service name is set on the launch config. Spans are
// created per request by otelchi and enriched with chi route parameters, the
// request id and client address. A tracer provider can be built from a Config,
// usually read from OTEL_* environment variables:
//
//	cfg := otel.GetConfigFromEnv()
//	tp, err := otel.NewTracerProvider(context.Background(), "my-service", cfg)
//	if err != nil {
//		return err
//	}
//	defer tp.Shutdown(context.Background())
//	launch.NoBaseDir().Tracing("my-service", tp)
package otel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names
const (
	ExporterNone    = "none"
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
)

// Config selects and configures a span exporter.
type Config struct {
	TracesExporter string // "console", "otlp" or "none"
	Environment    string
	ServiceVersion string

	StdoutPrettyPrint bool
	StdoutWriter      io.Writer // defaults to os.Stdout

	OTLPEndpoint    string
	OTLPTimeout     time.Duration
	OTLPHeaders     map[string]string
	OTLPCompression string // "gzip" or ""
	OTLPURLPath     string
	OTLPInsecure    bool
}

// DefaultConfig has tracing disabled.
func DefaultConfig() *Config {
	return &Config{
		TracesExporter:    ExporterNone,
		Environment:       "test",
		ServiceVersion:    "0.0.0",
		StdoutPrettyPrint: true,
		OTLPEndpoint:      "localhost:4318",
		OTLPInsecure:      true,
		OTLPHeaders:       map[string]string{},
	}
}

// GetConfigFromEnv overlays OTEL_* environment variables on DefaultConfig.
//
//   - OTEL_TRACES_EXPORTER: console, otlp or none
//   - OTEL_ENVIRONMENT, OTEL_SERVICE_VERSION
//   - OTEL_STDOUT_PRETTY_PRINT: "false" disables pretty printing
//   - OTEL_STDOUT_WRITER: stdout or stderr
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_URL_PATH
//   - OTEL_EXPORTER_OTLP_TIMEOUT: duration ("10s") or milliseconds ("10000")
//   - OTEL_EXPORTER_OTLP_HEADERS: "key1=value1,key2=value2"
//   - OTEL_EXPORTER_OTLP_COMPRESSION: gzip
//   - OTEL_EXPORTER_OTLP_INSECURE: "false" requires TLS
func GetConfigFromEnv() *Config {
	return configFromLookup(os.Getenv)
}

func configFromLookup(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	if v := getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.TracesExporter = v
	}
	if v := getenv("OTEL_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := getenv("OTEL_SERVICE_VERSION"); v != "" {
		cfg.ServiceVersion = v
	}
	if getenv("OTEL_STDOUT_PRETTY_PRINT") == "false" {
		cfg.StdoutPrettyPrint = false
	}
	if getenv("OTEL_STDOUT_WRITER") == "stderr" {
		cfg.StdoutWriter = os.Stderr
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_URL_PATH"); v != "" {
		cfg.OTLPURLPath = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OTLPTimeout = d
		} else if ms, err := strconv.Atoi(v); err == nil {
			cfg.OTLPTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		for _, pair := range strings.Split(v, ",") {
			if kv := strings.SplitN(strings.TrimSpace(pair), "=", 2); len(kv) == 2 {
				cfg.OTLPHeaders[kv[0]] = kv[1]
			}
		}
	}
	if v := getenv("OTEL_EXPORTER_OTLP_COMPRESSION"); v != "" {
		cfg.OTLPCompression = v
	}
	if getenv("OTEL_EXPORTER_OTLP_INSECURE") == "false" {
		cfg.OTLPInsecure = false
	}
	return cfg
}

// NewExporter returns the exporter selected by cfg, or nil for "none".
func NewExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch cfg.TracesExporter {
	case ExporterNone, "":
		return nil, nil
	case ExporterConsole:
		var opts []stdouttrace.Option
		if cfg.StdoutPrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		if cfg.StdoutWriter != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.StdoutWriter))
		}
		return stdouttrace.New(opts...)
	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if cfg.OTLPTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.OTLPTimeout))
		}
		if len(cfg.OTLPHeaders) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
		}
		if cfg.OTLPCompression == "gzip" {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		if cfg.OTLPURLPath != "" {
			opts = append(opts, otlptracehttp.WithURLPath(cfg.OTLPURLPath))
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	}
	return nil, fmt.Errorf("otel: unsupported exporter type: %s", cfg.TracesExporter)
}

// NewTracerProvider builds a tracer provider exporting through cfg.
// With the "none" exporter the provider records nothing.
// The caller owns the provider and must shut it down.
func NewTracerProvider(ctx context.Context, serviceName string, cfg *Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}
	exporter, err := NewExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// NewMiddleware creates spans for each request and enriches them.
// A nil tp uses the global tracer provider.
func NewMiddleware(serviceName string, tp trace.TracerProvider) func(http.Handler) http.Handler {
	var opts []otelchi.Option
	if tp != nil {
		opts = append(opts, otelchi.WithTracerProvider(tp))
	}
	baseMw := otelchi.Middleware(serviceName, opts...)
	return func(next http.Handler) http.Handler {
		h := baseMw(enrich(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// A shared route context lets span naming see routes resolved by
			// a chi router further down
			if chi.RouteContext(r.Context()) == nil {
				r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
			}
			h.ServeHTTP(w, r)
		})
	}
}

func enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		span.SetAttributes(attribute.String("http.user_agent", r.UserAgent()))
		if xRealIP := r.Header.Get("X-Real-IP"); xRealIP != "" {
			span.SetAttributes(attribute.String("http.real_ip", xRealIP))
		} else {
			span.SetAttributes(attribute.String("http.remote_addr", r.RemoteAddr))
		}
		if requestID := middleware.GetReqID(r.Context()); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		next.ServeHTTP(w, r)
		// Route params are only known once chi has routed the request
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, k := range rctx.URLParams.Keys {
				if k == "*" || i >= len(rctx.URLParams.Values) || rctx.URLParams.Values[i] == "" {
					continue
				}
				span.SetAttributes(attribute.String("http.path_param."+k, rctx.URLParams.Values[i]))
			}
		}
	})
}
