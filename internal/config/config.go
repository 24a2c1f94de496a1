// Package config loads client configuration from environment
// variables. Command-line flags and the saved token file override or
// fill the result at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the mount client configuration.
type Config struct {
	// Remote API
	BaseURL   string
	AuthToken string

	// Mount
	MountPoint string
	StagingDir string
	AllowOther bool

	// Observability
	MetricsAddr string
	Verbose     int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		BaseURL:     envOr("FILEJUMP_BASE_URL", ""),
		AuthToken:   envOr("FILEJUMP_AUTH_TOKEN", ""),
		StagingDir:  envOr("FILEJUMP_STAGING_DIR", ""),
		MetricsAddr: envOr("FILEJUMP_METRICS_ADDR", ""),
		Verbose:     envInt("FILEJUMP_VERBOSE", 0),
	}
}

// Validate checks that the configuration can drive a mount.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("server URL is required (-server or FILEJUMP_BASE_URL)")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth token is required (-token, FILEJUMP_AUTH_TOKEN, or a saved login)")
	}
	if c.MountPoint == "" {
		return fmt.Errorf("mount point is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
