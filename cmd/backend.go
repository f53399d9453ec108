package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/assistant"
	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/config"
	"github.com/teemow/calpilot/internal/database"
	"github.com/teemow/calpilot/internal/google"
	"github.com/teemow/calpilot/internal/instrumentation"
	"github.com/teemow/calpilot/internal/logging"
)

// loadConfig reads the file named by --config, falling back to
// CALPILOT_CONFIG when the flag was not set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Root().PersistentFlags().Changed("config") {
		if env := os.Getenv("CALPILOT_CONFIG"); env != "" {
			path = env
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// backend holds the opened stores. Personas always live in SQLite, even
// when events come from Google Calendar.
type backend struct {
	cfg   *config.Config
	loc   *time.Location
	db    *database.SQLiteStore
	store calendar.Store
}

// openBackend opens the stores selected by cfg.Backend.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	// Tool arguments and stored wall-clock times are read in time.Local.
	time.Local = loc

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := database.Open(cfg.Database.Path, database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	b := &backend{cfg: cfg, loc: loc, db: db}
	switch cfg.Backend {
	case config.BackendSQLite:
		b.store = db
	case config.BackendGoogle:
		gs, err := calendar.NewGoogleStore(ctx, cfg.Google.Account, cfg.Google.CalendarID, loc, google.NewFileTokenProvider(), logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open google calendar %q: %w", cfg.Google.CalendarID, err)
		}
		b.store = gs
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)", cfg.Backend, config.BackendSQLite, config.BackendGoogle)
	}
	return b, nil
}

// newEngine starts an engine over the opened stores. metrics may be nil.
func (b *backend) newEngine(logger *slog.Logger, metrics *instrumentation.Metrics) (*assistant.Engine, error) {
	return assistant.New(b.store, b.db, assistant.Options{
		Logger:                  logger,
		Metrics:                 metrics,
		DriftQueueSize:          b.cfg.Persona.DriftQueueSize,
		ReanalyzeAfterMutations: b.cfg.Persona.ReanalyzeAfterMutations,
		AnalysisSchedule:        b.cfg.Persona.Schedule,
		Location:                b.loc,
	})
}

// Close closes both stores. The database is shared when the backend is
// sqlite, so it is closed once.
func (b *backend) Close() error {
	var errs []error
	if b.store != calendar.Store(b.db) {
		errs = append(errs, b.store.Close())
	}
	errs = append(errs, b.db.Close())
	return errors.Join(errs...)
}

// withBackend runs fn against freshly opened stores.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *backend, logger *slog.Logger) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Maintenance commands exit as soon as fn returns, so background
	// re-analysis would never get to run.
	cfg.Persona.Schedule = ""
	cfg.Persona.ReanalyzeAfterMutations = false

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, b, logger)
}

// withEngine runs fn against a short-lived engine.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *assistant.Engine) error) error {
	return withBackend(cmd, func(ctx context.Context, b *backend, logger *slog.Logger) error {
		engine, err := b.newEngine(logger, nil)
		if err != nil {
			return err
		}
		defer engine.Close()
		return fn(ctx, engine)
	})
}

// newLogger logs to stderr so stdout stays free for command output and
// the stdio transport.
func newLogger() *slog.Logger {
	return logging.New(os.Stderr, debugMode)
}
