// Package config loads demo server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings read from UNIVERSAL_* variables.
type Config struct {
	Addr               string        `env:"UNIVERSAL_ADDR" envDefault:":8080"`
	SSRForceFetchDelay time.Duration `env:"UNIVERSAL_SSR_FORCE_FETCH_DELAY" envDefault:"100ms"`
	DevTools           bool          `env:"UNIVERSAL_DEVTOOLS" envDefault:"false"`
	LogLevel           string        `env:"UNIVERSAL_LOG_LEVEL" envDefault:"info"`
	MaxPrepasses       int           `env:"UNIVERSAL_MAX_PREPASSES" envDefault:"4"`
	FetchLimit         int           `env:"UNIVERSAL_FETCH_LIMIT" envDefault:"0"`
	PayloadTTL         time.Duration `env:"UNIVERSAL_PAYLOAD_TTL" envDefault:"1m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config and rejects values the server cannot run with.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.SSRForceFetchDelay < 0 {
		return Config{}, fmt.Errorf("config: UNIVERSAL_SSR_FORCE_FETCH_DELAY must not be negative, got %s", cfg.SSRForceFetchDelay)
	}
	if cfg.MaxPrepasses < 1 {
		return Config{}, fmt.Errorf("config: UNIVERSAL_MAX_PREPASSES must be at least 1, got %d", cfg.MaxPrepasses)
	}
	if cfg.FetchLimit < 0 {
		return Config{}, fmt.Errorf("config: UNIVERSAL_FETCH_LIMIT must not be negative, got %d", cfg.FetchLimit)
	}
	return cfg, nil
}
