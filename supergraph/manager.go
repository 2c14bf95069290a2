package supergraph

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/Gratheon/graphql-router/composition"
	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/metric"
	"github.com/Gratheon/graphql-router/registry"
)

// Fetcher retrieves the latest subgraph descriptors from the schema registry
type Fetcher interface {
	Fetch(ctx context.Context) (descriptors []registry.SubgraphDescriptor, sawError bool)
}

// PublishFunc is invoked with the new SDL whenever composition produces a
// changed result
type PublishFunc func(sdl string)

// buildOutput is one successful composition plus the subgraph endpoints that
// produced it
type buildOutput struct {
	sdl       string
	schema    *ast.Schema
	routing   composition.Routing
	subgraphs map[string]string
}

// Manager owns the currently published supergraph and the poll loop that
// refreshes it. The SDL cache and last-valid composition are private to the
// manager's build path; the only cross-task shared state is the current
// supergraph pointer.
type Manager struct {
	fetcher  Fetcher
	interval time.Duration
	publish  PublishFunc
	logger   *slog.Logger
	metrics  *metric.Metrics

	current atomic.Pointer[Supergraph]
	state   atomic.Int32

	// Private to the build path: Initialize runs the first build before the
	// poll task starts, and afterwards only the poll task touches these.
	sdlCache      map[string]string
	lastValid     *buildOutput
	lastPublished string
	generation    uint64

	cancelOnce sync.Once
	stop       chan struct{}
	done       chan struct{}
}

// NewManager creates a supergraph manager. A zero interval disables polling;
// publish may be nil.
func NewManager(fetcher Fetcher, interval time.Duration, publish PublishFunc,
	logger *slog.Logger, metrics *metric.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		fetcher:  fetcher,
		interval: interval,
		publish:  publish,
		logger:   logger,
		metrics:  metrics,
		sdlCache: make(map[string]string),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Initialize performs the first build synchronously and, when a positive poll
// interval is configured, starts the poll loop. It returns the initial
// supergraph and a cancel function that stops polling.
func (m *Manager) Initialize(ctx context.Context) (*Supergraph, func(), error) {
	// A zero-interval manager stays in StateInitialized after its first
	// build, so a published supergraph also marks the manager as started
	if State(m.state.Load()) != StateInitialized || m.current.Load() != nil {
		return nil, nil, errors.WrapFatal(errors.ErrAlreadyStarted, "Manager", "Initialize",
			"manager already initialized")
	}

	out, changed, err := m.buildSupergraph(ctx)
	if err != nil {
		return nil, nil, err
	}

	sg := m.install(out)
	m.maybePublish(changed, out.sdl)

	if m.interval > 0 {
		m.state.Store(int32(StatePolling))
		go m.pollLoop(ctx)
	} else {
		close(m.done)
	}

	return sg, m.Cancel, nil
}

// Cancel stops the poll loop. Idempotent; after cancellation no further
// publish calls occur.
func (m *Manager) Cancel() {
	m.cancelOnce.Do(func() {
		m.state.Store(int32(StateStopped))
		close(m.stop)
	})
}

// Current returns the currently published supergraph, nil before the first
// successful build. Request handlers snapshot this once per request.
func (m *Manager) Current() *Supergraph {
	return m.current.Load()
}

// State returns the manager lifecycle state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Done is closed when the poll loop has exited
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// pollLoop runs one build per interval until cancelled. A failed cycle never
// aborts the loop.
func (m *Manager) pollLoop(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			m.Cancel()
			return
		case <-time.After(m.interval):
		}

		if m.State() == StateStopped {
			return
		}
		m.cycle(ctx)
	}
}

// cycle runs a single poll iteration
func (m *Manager) cycle(ctx context.Context) {
	out, changed, err := m.buildSupergraph(ctx)
	if err != nil {
		m.logger.Error("supergraph build failed, keeping current schema", "error", err)
		m.metrics.ObservePollCycle("error")
		return
	}

	m.install(out)
	m.maybePublish(changed, out.sdl)

	if changed {
		m.metrics.ObservePollCycle("changed")
	} else {
		m.metrics.ObservePollCycle("unchanged")
	}
}

// buildSupergraph fetches descriptors and composes them into a supergraph,
// falling back to the last valid composition when the registry or composition
// misbehaves.
func (m *Manager) buildSupergraph(ctx context.Context) (*buildOutput, bool, error) {
	descriptors, sawError := m.fetcher.Fetch(ctx)
	if sawError {
		m.logger.Warn("registry fetch failed, treating as empty snapshot")
	}

	schemaChanged := m.updateCache(descriptors)

	if len(descriptors) == 0 {
		if m.lastValid != nil {
			return m.lastValid, false, nil
		}
		return m.fallback()
	}

	// Descriptors whose SDL failed to parse cannot be composed
	valid := descriptors[:0:0]
	for _, d := range descriptors {
		if d.AST != nil {
			valid = append(valid, d)
		}
	}

	if len(valid) == 0 {
		if m.lastValid != nil {
			return m.lastValid, false, nil
		}
		return nil, false, errors.WrapFatal(errors.ErrNoSubgraphs, "Manager", "buildSupergraph",
			"no composable subgraphs and no previous supergraph")
	}

	result, err := composition.Compose(valid)
	if err != nil {
		if m.lastValid != nil {
			m.logger.Error("composition failed, keeping last valid supergraph", "error", err)
			return m.lastValid, false, nil
		}
		return nil, false, err
	}

	out := &buildOutput{
		sdl:       result.SDL,
		schema:    result.Schema,
		routing:   result.Routing,
		subgraphs: subgraphURLs(valid),
	}
	m.lastValid = out
	return out, schemaChanged, nil
}

// fallback produces the constant single-subgraph schema used when nothing else
// can be served
func (m *Manager) fallback() (*buildOutput, bool, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "fallback", Input: fallbackSDL})
	if err != nil {
		return nil, false, errors.WrapFatal(err, "Manager", "fallback", "fallback schema load")
	}
	m.logger.Warn("registry returned no subgraphs, serving fallback schema")
	return &buildOutput{
		sdl:    fallbackSDL,
		schema: schema,
		routing: composition.Routing{
			Query:    map[string]string{},
			Mutation: map[string]string{},
		},
		subgraphs: map[string]string{},
	}, true, nil
}

// updateCache compares descriptors against the SDL cache, updates it, and
// reports whether any subgraph changed. An empty snapshot leaves the cache
// untouched so a registry blackout followed by recovery with identical SDLs
// is not a change.
func (m *Manager) updateCache(descriptors []registry.SubgraphDescriptor) bool {
	if len(descriptors) == 0 {
		return false
	}

	changed := false
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		seen[d.Name] = true
		if m.sdlCache[d.Name] != d.TypeDefs {
			m.sdlCache[d.Name] = d.TypeDefs
			changed = true
		}
	}
	for name := range m.sdlCache {
		if !seen[name] {
			delete(m.sdlCache, name)
			changed = true
		}
	}
	return changed
}

// install swaps the new supergraph into the current pointer when its SDL
// differs, bumping the generation. Readers always observe a complete value.
func (m *Manager) install(out *buildOutput) *Supergraph {
	cur := m.current.Load()
	if cur != nil && cur.SDL == out.sdl {
		return cur
	}

	m.generation++
	sg := &Supergraph{
		SDL:        out.sdl,
		Schema:     out.schema,
		Routing:    out.routing,
		Subgraphs:  out.subgraphs,
		Generation: m.generation,
	}
	m.current.Store(sg)
	m.metrics.ObserveGeneration(sg.Generation)
	m.logger.Info("supergraph published",
		"generation", sg.Generation, "subgraphs", len(sg.Subgraphs))
	return sg
}

// maybePublish fires the publish callback on edge-triggered changes only
func (m *Manager) maybePublish(changed bool, sdl string) {
	if !changed || m.publish == nil {
		return
	}
	if m.State() == StateStopped {
		return
	}
	if sdl == m.lastPublished {
		return
	}
	m.lastPublished = sdl
	m.publish(sdl)
}

// subgraphURLs builds the name to endpoint map, skipping descriptors the
// registry reported without a URL
func subgraphURLs(descriptors []registry.SubgraphDescriptor) map[string]string {
	urls := make(map[string]string, len(descriptors))
	for _, d := range descriptors {
		if d.URL == "" {
			continue
		}
		urls[d.Name] = d.URL
	}
	return urls
}
