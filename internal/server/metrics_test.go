package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calpilot/internal/instrumentation"
	"github.com/teemow/calpilot/internal/logging"
)

func newProvider(t *testing.T, cfg instrumentation.Config) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	cfg.ServiceName = "calpilot-test"
	cfg.ServiceVersion = "test"
	p, err := instrumentation.NewProvider(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })
	return p
}

func prometheusProvider(t *testing.T) *instrumentation.Provider {
	return newProvider(t, instrumentation.Config{
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
}

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name     string
		provider func(t *testing.T) *instrumentation.Provider
		addr     string
		wantAddr string
		wantErr  error
	}{
		{name: "explicit addr", provider: prometheusProvider, addr: ":9191", wantAddr: ":9191"},
		{name: "default addr", provider: prometheusProvider, wantAddr: DefaultMetricsAddr},
		{
			name:     "nil provider",
			provider: func(*testing.T) *instrumentation.Provider { return nil },
			wantErr:  errNoProvider,
		},
		{
			name: "disabled provider",
			provider: func(t *testing.T) *instrumentation.Provider {
				return newProvider(t, instrumentation.Config{Enabled: false})
			},
			wantErr: errProviderDisabled,
		},
		{
			name: "stdout exporter",
			provider: func(t *testing.T) *instrumentation.Provider {
				return newProvider(t, instrumentation.Config{Enabled: true, MetricsExporter: "stdout", TracingExporter: "none"})
			},
			wantErr: errExporterNotScrape,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(MetricsServerConfig{
				Addr:                    tt.addr,
				InstrumentationProvider: tt.provider(t),
				Logger:                  logging.Discard(),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, srv.Addr())
			assert.Nil(t, srv.BoundAddr())
		})
	}
}

func TestMetricsServer_ServesScrapeAndHealth(t *testing.T) {
	provider := prometheusProvider(t)
	provider.Metrics().RecordToolInvocation(context.Background(), "list_events", instrumentation.StatusSuccess, 5*time.Millisecond)

	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		InstrumentationProvider: provider,
		Logger:                  logging.Discard(),
	})
	require.NoError(t, err)

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.StartWithReadySignal(ready) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("metrics server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server start timed out")
	}

	base := "http://" + srv.BoundAddr().String()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)

	resp, err = http.Get(base + provider.PrometheusPath())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mcp_tool_invocations")
	assert.Contains(t, string(body), "go_goroutines")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestMetricsServer_ShutdownBeforeStart(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: prometheusProvider(t)})
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
