package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// Validate checks the loaded configuration and resolves derived fields.
// Load calls it automatically.
func (c *Config) Validate() error {
	if c.Database.Path == "" || c.Database.Path == ":memory:" {
		return fmt.Errorf("database.path must name a file (got %q)", c.Database.Path)
	}
	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("database.busy_timeout must be > 0 (got %v)", c.Database.BusyTimeout)
	}
	if c.Database.ReadConns < 1 {
		return fmt.Errorf("database.read_conns must be >= 1 (got %d)", c.Database.ReadConns)
	}

	if err := c.Engine.validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Scheduler.validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (e EngineConfig) validate() error {
	if e.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be >= 1 (got %d)", e.RetryAttempts)
	}
	if e.RetryInitialInterval < 0 {
		return fmt.Errorf("retry_initial_interval must be >= 0 (got %v)", e.RetryInitialInterval)
	}
	if e.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be >= 1 (got %v)", e.RetryMultiplier)
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	s.Location = loc

	for name, spec := range map[string]string{
		"daily_reset_spec": s.DailyResetSpec,
		"sweep_spec":       s.SweepSpec,
		"window_spec":      s.WindowSpec,
	} {
		if _, err := cron.Parse(spec); err != nil {
			return fmt.Errorf("%s %q: %w", name, spec, err)
		}
	}
	return nil
}

func (l LogConfig) validate() error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return fmt.Errorf("level %q: %w", l.Level, err)
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("format must be text or json (got %q)", l.Format)
	}
	return nil
}
