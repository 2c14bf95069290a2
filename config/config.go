// Package config provides configuration loading and validation for the
// graphql-router gateway. Configuration comes from an environment bundle
// selected by ENV_ID (dev or prod) with per-variable overrides, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Gratheon/graphql-router/errors"
)

// Environment identifiers recognized by ENV_ID
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// DefaultListenPort is the port the gateway binds when none is configured
const DefaultListenPort = 6100

// Config represents the complete gateway configuration
type Config struct {
	// EnvID selects the configuration bundle ("dev" or "prod")
	EnvID string `json:"env_id"`

	// SchemaRegistryURL is the base URL of the schema registry service
	SchemaRegistryURL string `json:"schema_registry_url"`

	// UserCycleURL is the base URL of the identity service
	UserCycleURL string `json:"user_cycle_url"`

	// PrivateKey is the shared secret used to verify session JWTs
	PrivateKey string `json:"private_key"`

	// PollIntervalMs is the supergraph poll interval in milliseconds.
	// Zero disables background polling.
	PollIntervalMs int `json:"poll_interval_ms"`

	// SentryDSN enables Sentry error reporting when set
	SentryDSN string `json:"sentry_dsn,omitempty"`

	// EventBrokerURL is the host:port of the query-log event broker.
	// Empty disables query-log publishing.
	EventBrokerURL string `json:"event_broker_url,omitempty"`

	// ListenPort is the HTTP listen port (default 6100)
	ListenPort int `json:"listen_port"`
}

// bundle returns the defaults for a given environment
func bundle(envID string) Config {
	switch envID {
	case EnvProd:
		return Config{
			EnvID:             EnvProd,
			SchemaRegistryURL: "http://graphql-schema-registry:6001",
			UserCycleURL:      "http://user-cycle:4000",
			PollIntervalMs:    10000,
			ListenPort:        DefaultListenPort,
		}
	default:
		return Config{
			EnvID:             EnvDev,
			SchemaRegistryURL: "http://localhost:6001",
			UserCycleURL:      "http://localhost:4000",
			PollIntervalMs:    5000,
			ListenPort:        DefaultListenPort,
		}
	}
}

// Load builds the configuration from the process environment. A .env file in
// the working directory is read first when present; explicit environment
// variables win over it.
func Load() (*Config, error) {
	// Ignore a missing .env; only real read errors matter
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", ".env parse")
		}
	}

	cfg := bundle(os.Getenv("ENV_ID"))

	if v := os.Getenv("SCHEMA_REGISTRY_URL"); v != "" {
		cfg.SchemaRegistryURL = v
	}
	if v := os.Getenv("USER_CYCLE_URL"); v != "" {
		cfg.UserCycleURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.PrivateKey = v
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		cfg.SentryDSN = v
	}
	if v := os.Getenv("EVENT_BROKER_URL"); v != "" {
		cfg.EventBrokerURL = v
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load",
				fmt.Sprintf("invalid POLL_INTERVAL_MS %q", v))
		}
		cfg.PollIntervalMs = ms
	}
	if v := os.Getenv("LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load",
				fmt.Sprintf("invalid LISTEN_PORT %q", v))
		}
		cfg.ListenPort = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.EnvID == "" {
		c.EnvID = EnvDev
	}
	if c.EnvID != EnvDev && c.EnvID != EnvProd {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown ENV_ID %q", c.EnvID))
	}

	if c.SchemaRegistryURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"schema registry URL is required")
	}
	if _, err := url.ParseRequestURI(c.SchemaRegistryURL); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("invalid schema registry URL %q", c.SchemaRegistryURL))
	}

	if c.UserCycleURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"identity service URL is required")
	}
	if _, err := url.ParseRequestURI(c.UserCycleURL); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("invalid identity service URL %q", c.UserCycleURL))
	}

	if c.PollIntervalMs < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"poll interval must be >= 0")
	}

	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("listen port %d out of range", c.ListenPort))
	}

	return nil
}

// PollInterval returns the poll interval as a duration; zero disables polling
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ListenAddress returns the bind address for the HTTP server
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.ListenPort)
}
