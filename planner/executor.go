package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/errgroup"

	"github.com/Gratheon/graphql-router/auth"
	"github.com/Gratheon/graphql-router/dispatch"
	"github.com/Gratheon/graphql-router/metric"
	"github.com/Gratheon/graphql-router/supergraph"
)

// Result is the composed outcome of one plan execution
type Result struct {
	// Data holds the merged field data; nil when nothing resolved
	Data map[string]any
	// Errors carries subgraph errors untouched plus router-generated errors
	Errors []json.RawMessage
}

// Executor runs plans against one supergraph generation. The dispatcher set
// is built once per generation so endpoint URLs stay immutable while it
// serves.
type Executor struct {
	generation  uint64
	dispatchers map[string]*dispatch.Dispatcher
	logger      *slog.Logger
}

// NewExecutor builds the per-subgraph dispatchers for a supergraph generation
func NewExecutor(sg *supergraph.Supergraph, timeout time.Duration,
	logger *slog.Logger, metrics *metric.Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	dispatchers := make(map[string]*dispatch.Dispatcher, len(sg.Subgraphs))
	for name, url := range sg.Subgraphs {
		dispatchers[name] = dispatch.NewDispatcher(name, url, timeout, logger, metrics)
	}
	return &Executor{
		generation:  sg.Generation,
		dispatchers: dispatchers,
		logger:      logger,
	}
}

// Generation returns the supergraph generation this executor serves
func (e *Executor) Generation() uint64 {
	return e.generation
}

// Execute runs the plan layer by layer. Fetches within a layer run
// concurrently; a failed fetch contributes an error without aborting its
// siblings, so partial data flows when the plan allows.
func (e *Executor) Execute(ctx context.Context, plan *Plan, authCtx *auth.Context) *Result {
	result := &Result{}

	if len(plan.LocalFields) > 0 {
		result.Data = make(map[string]any, len(plan.LocalFields))
		for _, alias := range plan.LocalFields {
			result.Data[alias] = "Query"
		}
	}

	for _, layer := range plan.Layers {
		e.executeLayer(ctx, layer, authCtx, result)
	}

	return result
}

// executeLayer dispatches all fetches of one layer concurrently and merges
// their outcomes
func (e *Executor) executeLayer(ctx context.Context, layer Layer,
	authCtx *auth.Context, result *Result) {

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, fetch := range layer.Fetches {
		fetch := fetch
		g.Go(func() error {
			resp, err := e.executeFetch(gctx, fetch, authCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, routerError(err, fetch.Subgraph))
				return nil
			}
			if len(resp.Data) > 0 && result.Data == nil {
				result.Data = make(map[string]any, len(resp.Data))
			}
			for k, v := range resp.Data {
				result.Data[k] = v
			}
			result.Errors = append(result.Errors, resp.Errors...)
			return nil
		})
	}

	// Goroutines only return nil; Wait is a join point
	_ = g.Wait()
}

// executeFetch runs one fetch against its subgraph
func (e *Executor) executeFetch(ctx context.Context, fetch Fetch,
	authCtx *auth.Context) (*dispatch.Response, error) {

	d, ok := e.dispatchers[fetch.Subgraph]
	if !ok {
		e.logger.Error("plan references unknown subgraph", "subgraph", fetch.Subgraph)
		return nil, &gqlerror.Error{
			Message:    "subgraph not available: " + fetch.Subgraph,
			Extensions: map[string]any{"subgraph": fetch.Subgraph},
		}
	}
	return d.Dispatch(ctx, fetch.Request, authCtx)
}

// routerError renders a dispatch failure as a GraphQL error annotated with
// the subgraph name
func routerError(err error, subgraphName string) json.RawMessage {
	gqlErr := &gqlerror.Error{
		Message: err.Error(),
		Extensions: map[string]any{
			"subgraph": subgraphName,
		},
	}
	raw, marshalErr := json.Marshal(gqlErr)
	if marshalErr != nil {
		raw = []byte(`{"message":"subgraph request failed"}`)
	}
	return raw
}
