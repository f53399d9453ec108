package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, "calpilot", c.ServiceName)
	assert.True(t, c.Enabled)
	assert.Equal(t, ExporterPrometheus, c.MetricsExporter)
	assert.Equal(t, ExporterNone, c.TracingExporter)
	assert.Equal(t, 0.1, c.TraceSamplingRate)
	assert.Equal(t, "/metrics", c.PrometheusEndpoint)
	assert.True(t, c.AuditLogging.Enabled)
	assert.False(t, c.AuditLogging.IncludeIDs)
	assert.NoError(t, c.Validate())
}

func TestConfig_ApplyEnv(t *testing.T) {
	c := DefaultConfig()
	err := c.ApplyEnv(envMap(map[string]string{
		"OTEL_SERVICE_NAME":         "test-service",
		"INSTRUMENTATION_ENABLED":   "false",
		"METRICS_EXPORTER":          "stdout",
		"TRACING_EXPORTER":          "stdout",
		"OTEL_TRACES_SAMPLER_ARG":   "0.5",
		"AUDIT_LOGGING_INCLUDE_IDS": "true",
		"PROMETHEUS_ENDPOINT":       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "test-service", c.ServiceName)
	assert.False(t, c.Enabled)
	assert.Equal(t, ExporterStdout, c.MetricsExporter)
	assert.Equal(t, ExporterStdout, c.TracingExporter)
	assert.Equal(t, 0.5, c.TraceSamplingRate)
	assert.True(t, c.AuditLogging.IncludeIDs)
	assert.Equal(t, "/metrics", c.PrometheusEndpoint, "empty values are ignored")
}

func TestConfig_ApplyEnvMalformed(t *testing.T) {
	c := DefaultConfig()
	err := c.ApplyEnv(envMap(map[string]string{
		"INSTRUMENTATION_ENABLED": "sometimes",
		"OTEL_TRACES_SAMPLER_ARG": "lots",
		"METRICS_EXPORTER":        "stdout",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSTRUMENTATION_ENABLED")
	assert.Contains(t, err.Error(), "OTEL_TRACES_SAMPLER_ARG")

	assert.True(t, c.Enabled)
	assert.Equal(t, 0.1, c.TraceSamplingRate)
	assert.Equal(t, ExporterStdout, c.MetricsExporter, "valid settings still apply")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TRACING_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ExporterOTLP, c.TracingExporter)
	assert.Equal(t, "localhost:4318", c.OTLPEndpoint)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		errContains string
	}{
		{
			name:   "prometheus",
			config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone},
		},
		{
			name:   "otlp tracing with endpoint",
			config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"},
		},
		{
			name:   "empty exporters use defaults",
			config: Config{},
		},
		{
			name:        "negative sampling rate",
			config:      Config{TraceSamplingRate: -0.5},
			errContains: "sampling rate",
		},
		{
			name:        "sampling rate above 1",
			config:      Config{TraceSamplingRate: 1.5},
			errContains: "sampling rate",
		},
		{
			name:        "invalid metrics exporter",
			config:      Config{MetricsExporter: "invalid"},
			errContains: "invalid metrics exporter",
		},
		{
			name:        "invalid tracing exporter",
			config:      Config{TracingExporter: "invalid"},
			errContains: "invalid tracing exporter",
		},
		{
			name:        "otlp tracing without endpoint",
			config:      Config{TracingExporter: ExporterOTLP},
			errContains: "OTLP endpoint is required",
		},
		{
			name:        "otlp metrics without endpoint",
			config:      Config{MetricsExporter: ExporterOTLP},
			errContains: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errContains)
		})
	}
}
