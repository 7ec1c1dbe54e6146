package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/khatm/internal/config"
	"github.com/roach88/khatm/internal/engine"
	"github.com/roach88/khatm/internal/preset"
	"github.com/roach88/khatm/internal/store"
	"github.com/roach88/khatm/internal/verse"
)

// app holds the components a command needs, built from configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	verses *verse.Index
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w (stderr in production)
// so JSON output on stdout stays machine-readable.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// loadVerses builds the verse index, with text when configured.
func loadVerses(cfg *config.Config) (*verse.Index, error) {
	if cfg.Verse.TextPath == "" {
		return verse.Load()
	}
	f, err := os.Open(cfg.Verse.TextPath)
	if err != nil {
		return nil, fmt.Errorf("open verse text: %w", err)
	}
	defer f.Close()
	return verse.Load(verse.WithText(f))
}

// openApp loads configuration, the verse index and the store.
func openApp(opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, logOut)

	verses, err := loadVerses(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load verse index", err)
	}

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path,
		store.WithBusyTimeout(cfg.Database.BusyTimeout),
		store.WithReadConns(cfg.Database.ReadConns),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{cfg: cfg, logger: logger, store: st, verses: verses}, nil
}

// newEngine builds the processor over the app's store.
func (a *app) newEngine(ctx context.Context, extra ...engine.EngineOption) (*engine.Engine, error) {
	presets, err := preset.Load(a.cfg.Presets.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load presets", err)
	}

	last, err := a.store.LastSeq(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read contribution log", err)
	}

	opts := []engine.EngineOption{
		engine.WithLogger(a.logger),
		engine.WithSequencer(engine.NewClockAt(last)),
		engine.WithPresets(presets),
		engine.WithRetryPolicy(engine.RetryPolicy{
			Attempts:        a.cfg.Engine.RetryAttempts,
			InitialInterval: a.cfg.Engine.RetryInitialInterval,
			Multiplier:      a.cfg.Engine.RetryMultiplier,
		}),
	}
	return engine.New(a.store, a.verses, append(opts, extra...)...), nil
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
