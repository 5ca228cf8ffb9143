// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration comes from one YAML file. ${VAR} and
// ${VAR:-default} references are expanded before parsing, a small set of
// GATEWAY_* environment variables override individual keys, and Validate
// rejects anything the core cannot run with. The rest of the gateway only
// ever sees a validated Config.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - sections.go:   Section types owned by other packages (store, broker, backends)
//   - monitoring.go: Logging, telemetry, alert and metrics settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the prediction gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP server settings
	Store      StoreConfig      `yaml:"store"`      // Task result store
	Broker     BrokerConfig     `yaml:"broker"`     // Priority queues
	Workers    WorkersConfig    `yaml:"workers"`    // Worker pool sizes
	Backends   BackendsConfig   `yaml:"backends"`   // Prediction backends by adapter name
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging, telemetry, metrics
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`            // Port to listen on
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // Max time to read request
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // Max time to write response
	RateLimit      int           `yaml:"rate_limit"`      // Requests per second per client IP, 0 = off
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS origins
	APITokens      []string      `yaml:"api_tokens"`      // Bearer tokens, empty = no auth
}

// Environment overrides.
const (
	EnvPort         = "GATEWAY_PORT"
	EnvStorePath    = "GATEWAY_STORE_PATH"
	EnvTelemetryLog = "GATEWAY_TELEMETRY_LOG"
)

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployments move the port and the files the
// gateway writes without editing the config file.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Server.Port = port
	}

	if v := os.Getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}

	if v := os.Getenv(EnvTelemetryLog); v != "" {
		c.Monitoring.Telemetry.LogPath = v
		c.Monitoring.Telemetry.Enabled = true
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if err := c.Workers.Validate(); err != nil {
		return err
	}
	if err := c.Backends.Validate(); err != nil {
		return err
	}
	if err := c.validatePools(); err != nil {
		return err
	}

	return c.Monitoring.Validate()
}

// validatePools rejects pool sizes for queues no enabled backend uses.
func (c *Config) validatePools() error {
	queues := map[string]bool{GenericQueue: true}
	for _, q := range c.Backends.Queues() {
		queues[q] = true
	}
	for name := range c.Workers.Pools {
		if !queues[name] {
			return fmt.Errorf("workers.pools.%s: no enabled backend uses this queue", name)
		}
	}
	return nil
}
