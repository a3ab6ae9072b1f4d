package server

import (
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/interline-io/transitland-embed/launch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func hello(cfg *launch.Config) (http.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		io.WriteString(w, "hello")
	}), nil
}

func newConfig(t *testing.T, b *launch.Builder, hf launch.HandlerFactory) *launch.Config {
	t.Helper()
	cfg, err := b.Address("127.0.0.1").Port(0).ShutdownTimeout(time.Second).Build(hf)
	require.NoError(t, err)
	return cfg
}

func getBody(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	u, err := s.Address()
	require.NoError(t, err)
	resp, err := http.Get(u.String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Lifecycle(t *testing.T) {
	s := New(newConfig(t, launch.NoBaseDir(), hello))
	assert.False(t, s.IsRunning())
	assert.Equal(t, 0, s.BindPort())
	_, err := s.Address()
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.NotZero(t, s.BindPort())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	code, body := getBody(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello", body)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestServer_StopNotStarted(t *testing.T) {
	s := New(newConfig(t, launch.NoBaseDir(), hello))
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestServer_HandlerFactoryError(t *testing.T) {
	factoryErr := errors.New("no handler for you")
	s := New(newConfig(t, launch.NoBaseDir(), func(cfg *launch.Config) (http.Handler, error) {
		return nil, factoryErr
	}))
	err := s.Start()
	assert.ErrorIs(t, err, factoryErr)
	assert.False(t, s.IsRunning())
}

func TestServer_FactoryCalledOnStart(t *testing.T) {
	calls := 0
	var got *launch.Config
	cfg := newConfig(t, launch.NoBaseDir(), func(cfg *launch.Config) (http.Handler, error) {
		calls++
		got = cfg
		return http.NotFoundHandler(), nil
	})
	s := New(cfg)
	assert.Equal(t, 0, calls)
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, 1, calls)
	assert.Same(t, cfg, got)
}

func TestServer_Restart(t *testing.T) {
	s := New(newConfig(t, launch.NoBaseDir(), hello))
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start())
	defer s.Stop()
	code, _ := getBody(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_Recoverer(t *testing.T) {
	s := New(newConfig(t, launch.NoBaseDir().Development(true), hello))
	require.NoError(t, s.Start())
	defer s.Stop()
	code, _ := getBody(t, s, "/panic")
	assert.Equal(t, http.StatusInternalServerError, code)
	code, _ = getBody(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(newConfig(t, launch.NoBaseDir().MetricsRegisterer(reg), hello))
	require.NoError(t, s.Start())
	defer s.Stop()
	getBody(t, s, "/")
	getBody(t, s, "/")
	count, err := testutil.GatherAndCount(reg, "embed_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	metrics, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() != "embed_http_requests_total" {
			continue
		}
		assert.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
	}
}

func TestServer_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	s := New(newConfig(t, launch.NoBaseDir().Tracing("test-service", tp), hello))
	require.NoError(t, s.Start())
	getBody(t, s, "/")
	require.NoError(t, s.Stop())
	assert.Len(t, recorder.Ended(), 1)
}
