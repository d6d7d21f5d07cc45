// Package config loads the application configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

// Config is the root application configuration.
type Config struct {
	Server       ServerConfig         `yaml:"server"`
	Logging      logger.LoggingConfig `yaml:"logging"`
	PackageCache PackageCacheConfig   `yaml:"package_cache"`
	Execution    ExecutionConfig      `yaml:"execution"`
	RateLimit    RateLimitConfig      `yaml:"rate_limit"`
	Database     DatabaseConfig       `yaml:"database"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PackageCacheConfig struct {
	// Root is the package cache directory; layout is fixed:
	// <root>/<name-lowercase>/<version>/lib/**.
	Root string `yaml:"root"`
	// RefreshSchedule is a cron expression for index rescans.
	RefreshSchedule string `yaml:"refresh_schedule"`
	// ProbingPaths are extra directories searched for managed and native
	// dependencies.
	ProbingPaths []string `yaml:"probing_paths"`
	// DependencyManifest optionally points at a deps manifest consulted
	// before the probing paths.
	DependencyManifest string `yaml:"dependency_manifest"`
}

type ExecutionConfig struct {
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	DefaultImports   []string `yaml:"default_imports"`
	ConnectionString string   `yaml:"connection_string"`
	// References are additional configured reference names resolved for
	// every compilation.
	References []string `yaml:"references"`
}

// GetConfiguredReferenceNames satisfies the reference resolver's
// configuration contract.
func (c ExecutionConfig) GetConfiguredReferenceNames() []string {
	return c.References
}

// Timeout returns the configured default timeout.
func (c ExecutionConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type DatabaseConfig struct {
	// DSN selects PostgreSQL history storage; empty means in-memory.
	DSN string `yaml:"dsn"`
}

// Load reads the configuration file at path. A missing file yields defaults;
// a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("server port must be positive, got %d", cfg.Server.Port)
	}
	return cfg, nil
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8460},
		Logging: logger.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		PackageCache: PackageCacheConfig{
			Root:            ".package-cache",
			RefreshSchedule: "@every 1m",
		},
		Execution: ExecutionConfig{TimeoutSeconds: 30},
		RateLimit: RateLimitConfig{PerSecond: 5, Burst: 10},
	}
}

// applyEnv lets deployment environments override file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SCRATCHPAD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SCRATCHPAD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SCRATCHPAD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCRATCHPAD_PACKAGE_CACHE"); v != "" {
		cfg.PackageCache.Root = v
	}
	if v := os.Getenv("SCRATCHPAD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}
