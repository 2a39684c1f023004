// Package config loads the daemon configuration from a TOML file
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"go.eventcore.tech/engine"
)

const (
	// DefaultPath is the configuration file read when EVENTCORE_CONFIG is
	// not set
	DefaultPath = "eventcore.toml"

	// EnvConfigPath overrides the configuration file path
	EnvConfigPath = "EVENTCORE_CONFIG"
)

// Duration parses TOML duration strings such as "100us" or "10ms"
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// BackoffConfig holds the worker backoff keys of the engine table
type BackoffConfig struct {
	BaseDelay  Duration `toml:"base_delay"`
	Multiplier float64  `toml:"multiplier"`
	MaxDelay   Duration `toml:"max_delay"`
}

// EngineConfig holds the engine table
type EngineConfig struct {
	SchedulerPoolSize          int           `toml:"scheduler_pool_size"`
	ThreadDispatcherAssignment [][]string    `toml:"thread_dispatcher_assignment"`
	DefaultQueueSize           int           `toml:"default_queue_size"`
	Backoff                    BackoffConfig `toml:"backoff"`
	BroadcastRatePerSec        float64       `toml:"broadcast_rate_per_sec"`
}

// HTTPConfig holds the ops HTTP server keys
type HTTPConfig struct {
	Port int `toml:"port"`
}

// LogConfig holds the logging keys
type LogConfig struct {
	Level string `toml:"level"`
}

// Config is the full daemon configuration
type Config struct {
	Engine EngineConfig `toml:"engine"`
	HTTP   HTTPConfig   `toml:"http"`
	Log    LogConfig    `toml:"log"`
}

// Load reads and validates the configuration. A missing file yields the
// defaults; an invalid file or invalid engine settings are rejected before
// any goroutine starts.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultPath
	}

	cfg := defaults()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("No configuration file, using defaults")
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.EngineConfig().Validate(); err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("Configuration loaded")
	return cfg, nil
}

// defaults mirrors engine.DefaultConfig plus daemon defaults
func defaults() *Config {
	base := engine.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			SchedulerPoolSize:          base.SchedulerPoolSize,
			ThreadDispatcherAssignment: base.ThreadDispatcherAssignment,
			DefaultQueueSize:           base.DefaultQueueSize,
			Backoff: BackoffConfig{
				BaseDelay:  Duration(base.Backoff.BaseDelay),
				Multiplier: base.Backoff.Multiplier,
				MaxDelay:   Duration(base.Backoff.MaxDelay),
			},
		},
		HTTP: HTTPConfig{Port: 8080},
		Log:  LogConfig{Level: "info"},
	}
}

// EngineConfig converts the file representation into the engine's config
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		SchedulerPoolSize:          c.Engine.SchedulerPoolSize,
		ThreadDispatcherAssignment: c.Engine.ThreadDispatcherAssignment,
		DefaultQueueSize:           c.Engine.DefaultQueueSize,
		Backoff: engine.BackoffConfig{
			BaseDelay:  time.Duration(c.Engine.Backoff.BaseDelay),
			Multiplier: c.Engine.Backoff.Multiplier,
			MaxDelay:   time.Duration(c.Engine.Backoff.MaxDelay),
		},
		BroadcastRatePerSec: c.Engine.BroadcastRatePerSec,
	}
}
