// Package config loads the service configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const defaultPath = "config/config.yaml"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Static    StaticConfig    `yaml:"static"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int    `yaml:"write_timeout_seconds"`
}

// DatabaseConfig configures the profile store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// PublicKeyPath points at a PEM-encoded RSA public key. Empty disables
	// authentication; refuse that outside local development.
	PublicKeyPath string `yaml:"public_key_path"`
}

// CatalogConfig locates the mission catalog file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// RateLimitConfig throttles API callers. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// StaticConfig locates the frontend assets. Empty disables static serving.
type StaticConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the configuration file named by VOYAGER_CONFIG (default
// config/config.yaml) and applies environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("VOYAGER_CONFIG")
	if path == "" {
		path = defaultPath
	}

	cfg := &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeoutSec: 15, WriteTimeoutSec: 15},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Catalog: CatalogConfig{Path: "config/missions.yaml"},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Missing file is acceptable; env overrides may carry everything.
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Catalog.Path == "" {
		return nil, fmt.Errorf("mission catalog path is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VOYAGER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("VOYAGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VOYAGER_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("VOYAGER_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VOYAGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VOYAGER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("VOYAGER_AUTH_PUBLIC_KEY"); v != "" {
		cfg.Auth.PublicKeyPath = v
	}
	if v := os.Getenv("VOYAGER_CATALOG"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("VOYAGER_STATIC_DIR"); v != "" {
		cfg.Static.Dir = v
	}
}
