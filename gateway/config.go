package gateway

import (
	"time"

	"github.com/Gratheon/graphql-router/errors"
)

// Config holds configuration for the gateway HTTP server
type Config struct {
	// BindAddress is the HTTP bind address (default ":6100")
	BindAddress string

	// DispatchTimeout bounds each subgraph request (default 15s)
	DispatchTimeout time.Duration

	// EnablePlayground serves the playground page on GET /graphql
	// (default true)
	EnablePlayground bool

	// RequestTimeout is the read/write timeout of the HTTP server
	// (default 30s)
	RequestTimeout time.Duration
}

// DefaultConfig returns default gateway server configuration
func DefaultConfig() Config {
	return Config{
		BindAddress:      ":6100",
		DispatchTimeout:  15 * time.Second,
		EnablePlayground: true,
		RequestTimeout:   30 * time.Second,
	}
}

// Validate ensures the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":6100"
	}
	if c.DispatchTimeout == 0 {
		c.DispatchTimeout = 15 * time.Second
	}
	if c.DispatchTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"dispatch timeout must be positive")
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RequestTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request timeout must be positive")
	}
	return nil
}
