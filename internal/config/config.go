/*
PURPOSE:
  Defines the configuration structure and loading logic for psi-proxy.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Listen on a fixed local port unless told otherwise.
  - Optional API key; requests without one use nokey=true.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (PSI_...), including .env files.
  - Timeout 0 means "transport defaults", which is the required behavior.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine, internal/server
  - Dependencies: gopkg.in/yaml.v3, github.com/caarlos0/env/v11, github.com/joho/godotenv

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - A missing default file is not an error; defaults are returned.

IMPLEMENTATION RULES:
  - Config struct tags support yaml and env.
  - Precedence: defaults < file < environment < flags (flags applied by internal/cli).

USAGE:
  cfg, err := config.Load("psi-proxy.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct, DefaultConfig() and the embedded default file.

RELATED FILES:
  - internal/cli/root.go
  - internal/assets/defaults/psi-proxy.yaml

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEndpoint is the PageSpeed Insights v5 runPagespeed endpoint.
const DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PSI_"

// Strategies accepted as a default strategy.
var Strategies = []string{"mobile", "desktop"}

// DefaultFiles are searched, in order, when no config path is given.
var DefaultFiles = []string{"psi-proxy.yaml", "psi-proxy.yml", ".psi-proxy.yaml"}

// EnvFiles are loaded into the process environment when present.
var EnvFiles = []string{".env", ".env.local"}

// Config represents the full configuration for psi-proxy.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Endpoint        string        `yaml:"endpoint" env:"ENDPOINT"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	DefaultStrategy string        `yaml:"default_strategy" env:"DEFAULT_STRATEGY"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"LOG_FORMAT"`
	// MetricsAddr enables a separate Prometheus listener when set.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8888",
		Endpoint:        DefaultEndpoint,
		DefaultStrategy: "mobile",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads configuration from a file, then applies environment overrides.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultFiles in order.
// If no file found, defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if _, err := LoadEnvFiles(EnvFiles...); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads the existing files among names into the environment.
// Variables already set are never overridden. It returns how many files were loaded.
func LoadEnvFiles(names ...string) (int, error) {
	existing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := os.Stat(name); err == nil {
			existing = append(existing, name)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("failed to load env files %v: %w", existing, err)
	}
	return len(existing), nil
}

// ApplyEnv overrides cfg with PSI_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q is not a valid URL: %w", c.Endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %q must be an absolute http(s) URL", c.Endpoint)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", c.Timeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be non-negative, got %s", c.ShutdownTimeout)
	}
	if !validStrategy(c.DefaultStrategy) {
		return fmt.Errorf("default_strategy must be one of %v, got %q", Strategies, c.DefaultStrategy)
	}
	return nil
}

func validStrategy(s string) bool {
	for _, v := range Strategies {
		if s == v {
			return true
		}
	}
	return false
}
