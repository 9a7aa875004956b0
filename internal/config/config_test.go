package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "./filepool", cfg.PoolPath)
	require.Equal(t, "filepool.db", cfg.DatabasePath)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 30*time.Minute, cfg.DownloadTimeout)
	require.True(t, cfg.StreamingSupported)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POOL_PATH", "/data/pool")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DOWNLOAD_TIMEOUT", "5m")
	t.Setenv("STREAMING_SUPPORTED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/data/pool", cfg.PoolPath)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Minute, cfg.DownloadTimeout)
	require.False(t, cfg.StreamingSupported)
}

func TestValidate(t *testing.T) {
	valid := Config{
		PoolPath:        "./filepool",
		DatabasePath:    "filepool.db",
		LogLevel:        "info",
		DownloadTimeout: time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing pool path", func(c *Config) { c.PoolPath = "" }, "POOL_PATH"},
		{"missing database path", func(c *Config) { c.DatabasePath = "" }, "DATABASE_PATH"},
		{"zero timeout", func(c *Config) { c.DownloadTimeout = 0 }, "DOWNLOAD_TIMEOUT"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
