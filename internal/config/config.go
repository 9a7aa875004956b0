// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	PoolPath           string        `env:"POOL_PATH" envDefault:"./filepool"`
	DatabasePath       string        `env:"DATABASE_PATH" envDefault:"filepool.db"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	DownloadTimeout    time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"30m"`
	StreamingSupported bool          `env:"STREAMING_SUPPORTED" envDefault:"true"`
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	if c.PoolPath == "" {
		return fmt.Errorf("POOL_PATH is required")
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	return nil
}
