package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the engine host configuration.
type Config struct {
	// TickIntervalMs is the render driver poll period in milliseconds.
	TickIntervalMs int `koanf:"tick_interval_ms" validate:"min=1,max=1000"`

	// SampleRate is the audio output sample rate.
	SampleRate int `koanf:"sample_rate" validate:"min=8000,max=192000"`

	// RestoreSession replays the persisted position/speed on startup.
	RestoreSession bool `koanf:"restore_session"`

	// Mpris exports the engine over D-Bus (Linux only).
	Mpris bool `koanf:"mpris"`

	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string `koanf:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TickIntervalMs: 5,
		SampleRate:     44100,
		RestoreSession: true,
		Mpris:          true,
		LogLevel:       "info",
	}
}

// TickInterval returns the poll period as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Load reads configuration files in priority order (last wins) on top of
// the defaults and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/reel/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "reel", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}
