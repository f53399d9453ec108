package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: calpilot)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID identifies this process (default: hostname)
	ServiceInstanceID string

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool

	// MetricsExporter is one of "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter is one of "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the collector address without scheme, e.g. "localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP export. Development only.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// PrometheusEndpoint is the scrape path (default: "/metrics")
	PrometheusEndpoint string

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludeIDs adds event and changeset ids to audit entries. Event ids
	// point at private calendar data, so they are left out by default.
	IncludeIDs bool
}

// DefaultConfig returns the built-in instrumentation settings.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "calpilot",
		ServiceVersion:     "unknown",
		Enabled:            true,
		MetricsExporter:    ExporterPrometheus,
		TracingExporter:    ExporterNone,
		TraceSamplingRate:  0.1,
		PrometheusEndpoint: "/metrics",
		AuditLogging:       AuditLoggingConfig{Enabled: true},
	}
}

// envSetting binds one environment variable to a Config field.
type envSetting struct {
	key   string
	apply func(c *Config, value string) error
}

func stringSetting(key string, field func(*Config) *string) envSetting {
	return envSetting{key: key, apply: func(c *Config, v string) error {
		*field(c) = v
		return nil
	}}
}

func boolSetting(key string, field func(*Config) *bool) envSetting {
	return envSetting{key: key, apply: func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}}
}

var envSettings = []envSetting{
	stringSetting("OTEL_SERVICE_NAME", func(c *Config) *string { return &c.ServiceName }),
	stringSetting("OTEL_SERVICE_INSTANCE_ID", func(c *Config) *string { return &c.ServiceInstanceID }),
	boolSetting("INSTRUMENTATION_ENABLED", func(c *Config) *bool { return &c.Enabled }),
	stringSetting("METRICS_EXPORTER", func(c *Config) *string { return &c.MetricsExporter }),
	stringSetting("TRACING_EXPORTER", func(c *Config) *string { return &c.TracingExporter }),
	stringSetting("OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) *string { return &c.OTLPEndpoint }),
	boolSetting("OTEL_EXPORTER_OTLP_INSECURE", func(c *Config) *bool { return &c.OTLPInsecure }),
	{key: "OTEL_TRACES_SAMPLER_ARG", apply: func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.TraceSamplingRate = f
		return nil
	}},
	stringSetting("PROMETHEUS_ENDPOINT", func(c *Config) *string { return &c.PrometheusEndpoint }),
	boolSetting("AUDIT_LOGGING_ENABLED", func(c *Config) *bool { return &c.AuditLogging.Enabled }),
	boolSetting("AUDIT_LOGGING_INCLUDE_IDS", func(c *Config) *bool { return &c.AuditLogging.IncludeIDs }),
}

// ApplyEnv overrides c with every variable lookup reports as non-empty. A
// malformed value is an error naming the variable.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, s := range envSettings {
		v, ok := lookup(s.key)
		if !ok || v == "" {
			continue
		}
		if err := s.apply(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", s.key, v, err))
		}
	}
	return errors.Join(errs...)
}

// FromEnv returns DefaultConfig overridden by the process environment.
func FromEnv() (Config, error) {
	c := DefaultConfig()
	err := c.ApplyEnv(os.LookupEnv)
	return c, err
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}
	return nil
}

// Label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Store backends
	BackendSQLite = "sqlite"
	BackendGoogle = "google"

	// Store operations
	OperationList   = "list"
	OperationSearch = "search"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
	OperationUndo   = "undo"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
