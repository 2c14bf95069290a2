package main

import (
	"flag"
	"fmt"
	"time"
)

// CLIConfig holds parsed command-line options
type CLIConfig struct {
	LogLevel        string
	LogFormat       string
	ShowVersion     bool
	ShowHelp        bool
	ShutdownTimeout time.Duration
}

// parseFlags reads command-line options
func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format (text, json)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help and exit")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 30*time.Second,
		"Graceful shutdown timeout")
	flag.Parse()

	return cfg
}

// validateFlags checks flag values
func validateFlags(cfg *CLIConfig) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// printHelp shows usage information
func printHelp() {
	fmt.Printf("%s - federated GraphQL gateway\n\n", appName)
	fmt.Println("The gateway composes subgraph schemas from the schema registry and")
	fmt.Println("routes client operations to the owning subgraphs.")
	fmt.Println()
	fmt.Println("Configuration comes from the environment (ENV_ID selects the dev or")
	fmt.Println("prod bundle; SCHEMA_REGISTRY_URL, USER_CYCLE_URL, PRIVATE_KEY,")
	fmt.Println("POLL_INTERVAL_MS, LISTEN_PORT, SENTRY_DSN, EVENT_BROKER_URL override).")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
