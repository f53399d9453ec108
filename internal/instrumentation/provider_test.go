package instrumentation

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test-service", Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.ServesPrometheus() {
		t.Error("disabled provider must not serve metrics")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name       string
		metrics    string
		tracing    string
		prometheus bool
	}{
		{"prometheus", ExporterPrometheus, ExporterNone, true},
		{"stdout", ExporterStdout, ExporterStdout, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			provider, err := NewProvider(ctx, Config{
				ServiceName:     "test-service",
				ServiceVersion:  "1.0.0",
				Enabled:         true,
				MetricsExporter: tt.metrics,
				TracingExporter: tt.tracing,
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer func() { _ = provider.Shutdown(ctx) }()

			if !provider.Enabled() {
				t.Error("expected provider to be enabled")
			}
			if provider.ServesPrometheus() != tt.prometheus {
				t.Errorf("ServesPrometheus = %v, want %v", provider.ServesPrometheus(), tt.prometheus)
			}
			if provider.PrometheusPath() != "/metrics" {
				t.Errorf("unexpected path %q", provider.PrometheusPath())
			}
			if (provider.PrometheusHandler() != nil) != tt.prometheus {
				t.Errorf("PrometheusHandler presence = %v, want %v", provider.PrometheusHandler() != nil, tt.prometheus)
			}
			provider.Metrics().RecordToolInvocation(ctx, "get_events", StatusSuccess, time.Millisecond)
		})
	}
}

func TestNewProvider_SeparateRegistries(t *testing.T) {
	ctx := context.Background()
	cfg := Config{ServiceName: "calpilot", Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone}

	first, err := NewProvider(ctx, cfg, WithProviderLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("first provider: %v", err)
	}
	defer func() { _ = first.Shutdown(ctx) }()
	second, err := NewProvider(ctx, cfg)
	if err != nil {
		t.Fatalf("second provider: %v", err)
	}
	defer func() { _ = second.Shutdown(ctx) }()

	first.Metrics().RecordPersonaAnalysis(ctx, StatusSuccess)

	scrape := func(p *Provider) string {
		rec := httptest.NewRecorder()
		p.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}
	if !strings.Contains(scrape(first), "persona_analyses") {
		t.Error("first registry should expose the recorded analysis")
	}
	if strings.Contains(scrape(second), "persona_analyses") {
		t.Error("second registry must not see the first provider's metrics")
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := map[string]Config{
		"metrics exporter":       {Enabled: true, MetricsExporter: "invalid", TracingExporter: ExporterNone},
		"tracing exporter":       {Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: "invalid"},
		"otlp without endpoint":  {Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
		"sampling out of bounds": {Enabled: true, TraceSamplingRate: 2},
	}
	for name, config := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewProvider(context.Background(), config); err == nil {
				t.Error("expected error")
			}
		})
	}
}
