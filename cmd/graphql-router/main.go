// Package main implements the entry point for the graphql-router gateway.
// The gateway accepts client GraphQL operations at a single endpoint,
// resolves them against a supergraph composed from the schema registry, and
// dispatches sub-operations to the owning subgraphs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Gratheon/graphql-router/auth"
	"github.com/Gratheon/graphql-router/config"
	"github.com/Gratheon/graphql-router/events"
	"github.com/Gratheon/graphql-router/gateway"
	"github.com/Gratheon/graphql-router/metric"
	"github.com/Gratheon/graphql-router/registry"
	"github.com/Gratheon/graphql-router/supergraph"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "graphql-router"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("Starting graphql-router",
		"version", Version,
		"env", cfg.EnvID,
		"registry", cfg.SchemaRegistryURL,
		"poll_interval", cfg.PollInterval())

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.EnvID,
			Release:     appName + "@" + Version,
		}); err != nil {
			slog.Warn("Sentry initialization failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	metrics := metric.New()

	publisher := events.NewPublisher(cfg.EventBrokerURL, logger.With("component", "events"))
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, cancelManager, err := startManager(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer cancelManager()

	pipeline := auth.NewPipeline(
		auth.NewIdentityClient(cfg.UserCycleURL),
		cfg.PrivateKey,
		logger.With("component", "auth"),
		metrics,
	)

	serverCfg := gateway.DefaultConfig()
	serverCfg.BindAddress = cfg.ListenAddress()

	server, err := gateway.NewServer(serverCfg, manager, pipeline, publisher, metrics,
		logger.With("component", "gateway"))
	if err != nil {
		return fmt.Errorf("create gateway server: %w", err)
	}
	if err := server.Setup(); err != nil {
		return fmt.Errorf("setup gateway server: %w", err)
	}

	// Start gets a context of its own so that a signal shuts the server down
	// through Stop with the configured timeout
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(context.Background(), nil) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return server.Stop(cliCfg.ShutdownTimeout)
}

// startManager builds the initial supergraph synchronously and starts polling
func startManager(ctx context.Context, cfg *config.Config,
	logger *slog.Logger, metrics *metric.Metrics) (*supergraph.Manager, func(), error) {

	client := registry.NewClient(cfg.SchemaRegistryURL, logger.With("component", "registry"))

	publish := func(sdl string) {
		slog.Info("supergraph schema changed", "sdl_bytes", len(sdl))
	}

	manager := supergraph.NewManager(client, cfg.PollInterval(), publish,
		logger.With("component", "supergraph"), metrics)

	sg, cancel, err := manager.Initialize(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initial supergraph build: %w", err)
	}

	slog.Info("Initial supergraph composed",
		"generation", sg.Generation, "subgraphs", len(sg.Subgraphs))

	return manager, cancel, nil
}
