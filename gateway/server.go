// Package gateway provides the HTTP surface of the graphql-router: the
// GraphQL execution endpoint, the playground page, the composed-schema
// download, and the request pipeline tying authentication, scope
// enforcement, planning and dispatch together.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"

	"github.com/Gratheon/graphql-router/auth"
	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/events"
	"github.com/Gratheon/graphql-router/metric"
	"github.com/Gratheon/graphql-router/planner"
	"github.com/Gratheon/graphql-router/supergraph"
)

// Server manages the gateway HTTP server
type Server struct {
	config    Config
	manager   *supergraph.Manager
	pipeline  *auth.Pipeline
	publisher *events.Publisher
	metrics   *metric.Metrics
	logger    *slog.Logger

	httpServer *http.Server
	mux        *http.ServeMux

	// One executor per supergraph generation; rebuilt on generation change
	execMu   sync.Mutex
	executor *planner.Executor

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates the gateway HTTP server
func NewServer(config Config, manager *supergraph.Manager, pipeline *auth.Pipeline,
	publisher *events.Publisher, metrics *metric.Metrics, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if manager == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"supergraph manager is required")
	}
	if pipeline == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"auth pipeline is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:    config,
		manager:   manager,
		pipeline:  pipeline,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		mux:       http.NewServeMux(),
		stopChan:  make(chan struct{}),
	}, nil
}

// Setup configures the HTTP server and routes
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.HandleFunc("/graphql", s.handleGraphQL)
	s.mux.HandleFunc("/schema.graphql", s.handleSchema)
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
	s.mux.HandleFunc("/", s.handleNotFound)

	s.httpServer = &http.Server{
		Addr:         s.config.BindAddress,
		Handler:      corsMiddleware(s.mux),
		ReadTimeout:  s.config.RequestTimeout,
		WriteTimeout: s.config.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Gateway configured",
		"address", s.config.BindAddress,
		"playground", s.config.EnablePlayground)

	return nil
}

// Start starts the HTTP server. The ready channel is closed when the server
// is about to accept connections.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start",
			"server already running")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("Gateway starting", "address", s.config.BindAddress)

		if ready != nil {
			close(ready)
		}

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Gateway context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		s.logger.Info("Gateway stop requested")
		return nil

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Gateway stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown gateway gracefully", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Gateway stopped")
	return nil
}

// Handler exposes the configured route handler, wrapped in the CORS policy
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// executorFor returns the executor for the given supergraph snapshot,
// rebuilding the cached one when the generation moved. A request holding an
// older snapshot always gets an executor of its own generation.
func (s *Server) executorFor(sg *supergraph.Supergraph) *planner.Executor {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.executor == nil || s.executor.Generation() != sg.Generation {
		s.executor = planner.NewExecutor(sg, s.config.DispatchTimeout, s.logger, s.metrics)
	}
	return s.executor
}

// handleSchema serves the composed supergraph SDL
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}

	sg := s.manager.Current()
	if sg == nil {
		http.Error(w, "no supergraph published", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(sg.SDL))
}

// handleHealth reports readiness: healthy once a supergraph is published
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.manager.Current() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleNotFound answers everything outside the gateway surface
func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not found!"))
}

// playgroundHandler serves the playground page bound to the execution
// endpoint
func (s *Server) playgroundHandler() http.HandlerFunc {
	return playground.Handler("GraphQL Playground", "/graphql")
}
