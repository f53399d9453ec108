// Package config loads the calpilot YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/teemow/calpilot/internal/timeutil"
)

// Calendar backends.
const (
	BackendSQLite = "sqlite"
	BackendGoogle = "google"
)

// DatabaseConfig locates the local SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// GoogleConfig selects the remote calendar.
type GoogleConfig struct {
	Account    string `yaml:"account" json:"account"`
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
}

// WorkingHours is the default free-slot search window as HH:MM.
type WorkingHours struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// PersonaConfig controls background persona maintenance.
type PersonaConfig struct {
	// Schedule is a five-field cron spec for periodic re-analysis. Empty
	// disables it.
	Schedule                string `yaml:"schedule" json:"schedule"`
	ReanalyzeAfterMutations bool   `yaml:"reanalyze_after_mutations" json:"reanalyze_after_mutations"`
	DriftQueueSize          int    `yaml:"drift_queue_size" json:"drift_queue_size"`
}

// TelemetryConfig seeds the instrumentation settings. Empty values keep the
// instrumentation defaults and the OTEL/METRICS environment variables still
// win.
type TelemetryConfig struct {
	MetricsExporter string  `yaml:"metrics_exporter,omitempty" json:"metrics_exporter,omitempty"`
	TracingExporter string  `yaml:"tracing_exporter,omitempty" json:"tracing_exporter,omitempty"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	SamplingRate    float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	AuditIncludeIDs bool    `yaml:"audit_include_ids,omitempty" json:"audit_include_ids,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	// Backend is "sqlite" or "google".
	Backend string `yaml:"backend" json:"backend"`

	// Timezone is the IANA zone events are read and written in. Empty
	// means the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	Database     DatabaseConfig `yaml:"database" json:"database"`
	Google       GoogleConfig   `yaml:"google" json:"google"`
	WorkingHours WorkingHours   `yaml:"working_hours" json:"working_hours"`
	Persona      PersonaConfig  `yaml:"persona" json:"persona"`

	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

const (
	defaultCalendarID     = "primary"
	defaultDriftQueueSize = 64
	defaultSchedule       = "0 3 * * *"
	dataDirName           = "calpilot"
)

// DefaultDatabasePath is calpilot.db under the user config directory.
func DefaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, dataDirName, "calpilot.db")
}

// DefaultPath is config.yaml under the user config directory.
func DefaultPath() string {
	return filepath.Join(filepath.Dir(DefaultDatabasePath()), "config.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendSQLite,
		Database:     DatabaseConfig{Path: DefaultDatabasePath()},
		Google:       GoogleConfig{Account: "default", CalendarID: defaultCalendarID},
		WorkingHours: WorkingHours{Start: "09:00", End: "18:00"},
		Persona: PersonaConfig{
			Schedule:                defaultSchedule,
			ReanalyzeAfterMutations: false,
			DriftQueueSize:          defaultDriftQueueSize,
		},
	}
}

// Normalize fills zero values with defaults so partial files behave like
// complete ones.
func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath()
	}
	if c.Google.Account == "" {
		c.Google.Account = "default"
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = defaultCalendarID
	}
	if c.WorkingHours.Start == "" {
		c.WorkingHours.Start = "09:00"
	}
	if c.WorkingHours.End == "" {
		c.WorkingHours.End = "18:00"
	}
	if c.Persona.DriftQueueSize <= 0 {
		c.Persona.DriftQueueSize = defaultDriftQueueSize
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendGoogle:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendGoogle)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	start, err := timeutil.ClockMinutes(c.WorkingHours.Start)
	if err != nil {
		return fmt.Errorf("working_hours.start: %w", err)
	}
	end, err := timeutil.ClockMinutes(c.WorkingHours.End)
	if err != nil {
		return fmt.Errorf("working_hours.end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("working_hours.end %s must be after start %s", c.WorkingHours.End, c.WorkingHours.Start)
	}

	if r := c.Telemetry.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sampling_rate must be within [0,1], got %g", r)
	}

	if s := strings.TrimSpace(c.Persona.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("persona.schedule: %w", err)
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Load reads the YAML file at path. A missing file is created with the
// defaults, which are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calpilot-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
