// Package config loads the khatm engine configuration from a YAML file and
// KHATM_* environment variables.
package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Verse     VerseConfig     `yaml:"verse"`
	Presets   PresetsConfig   `yaml:"presets"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds the Counter Store settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"         env:"KHATM_DATABASE_PATH"         env-default:"khatm.db"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"KHATM_DATABASE_BUSY_TIMEOUT" env-default:"10s"`
	ReadConns   int           `yaml:"read_conns"   env:"KHATM_DATABASE_READ_CONNS"   env-default:"4"`
}

// EngineConfig holds the Mutation Processor retry policy.
type EngineConfig struct {
	RetryAttempts        int           `yaml:"retry_attempts"         env:"KHATM_ENGINE_RETRY_ATTEMPTS"         env-default:"3"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" env:"KHATM_ENGINE_RETRY_INITIAL_INTERVAL" env-default:"1s"`
	RetryMultiplier      float64       `yaml:"retry_multiplier"       env:"KHATM_ENGINE_RETRY_MULTIPLIER"       env-default:"2"`
}

// SchedulerConfig holds the time-driven reset triggers. Specs use the
// six-field cron format with a leading seconds field.
type SchedulerConfig struct {
	Disabled       bool   `yaml:"disabled"         env:"KHATM_SCHEDULER_DISABLED"`
	Timezone       string `yaml:"timezone"         env:"KHATM_SCHEDULER_TIMEZONE"         env-default:"Local"`
	DailyResetSpec string `yaml:"daily_reset_spec" env:"KHATM_SCHEDULER_DAILY_RESET_SPEC" env-default:"0 0 0 * * *"`
	SweepSpec      string `yaml:"sweep_spec"       env:"KHATM_SCHEDULER_SWEEP_SPEC"       env-default:"0 */5 * * * *"`
	WindowSpec     string `yaml:"window_spec"      env:"KHATM_SCHEDULER_WINDOW_SPEC"      env-default:"0 * * * * *"`

	// Location is resolved from Timezone during validation.
	Location *time.Location `yaml:"-" env:"-"`
}

// VerseConfig points at optional verse text in "surah|ayah|text" format.
type VerseConfig struct {
	TextPath string `yaml:"text_path" env:"KHATM_VERSE_TEXT_PATH"`
}

// PresetsConfig points at an optional CUE file overriding the built-in presets.
type PresetsConfig struct {
	Path string `yaml:"path" env:"KHATM_PRESETS_PATH"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"KHATM_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"KHATM_LOG_FORMAT" env-default:"text"`
}

// SlogLevel returns the slog level for Level. Validate guarantees it parses.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
