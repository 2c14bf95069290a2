// Package dispatch forwards planned sub-operations to subgraph endpoints.
//
// One dispatcher exists per subgraph endpoint per supergraph generation, so
// endpoint URLs stay immutable while a generation is live. Subgraphs trust
// the router through a shared signature header plus the internal identity
// header; no inbound client header ever crosses this boundary.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Gratheon/graphql-router/auth"
	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/metric"
)

// Headers injected into every subgraph request
const (
	// SignatureHeader stamps requests as router-originated. The value is a
	// fixed opaque string shared with all subgraphs; it is not a security
	// boundary on its own.
	SignatureHeader = "internal-router-signature"
	// UserIDHeader carries the resolved internal user id
	UserIDHeader = "internal-userId"
	// ShareScopesHeader carries the JSON-encoded share-token scope set
	ShareScopesHeader = "X-Share-Scopes"
)

// routerSignature is the stamp shared with all subgraphs
const routerSignature = "wWora9oghsePhaiyooQuab3oameiy1ei"

// DefaultTimeout bounds one subgraph request when no timeout is configured
const DefaultTimeout = 15 * time.Second

// Request is one planned sub-operation bound for a subgraph
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Response is a subgraph reply. Errors and extensions pass upward untouched.
type Response struct {
	Data       map[string]any    `json:"data"`
	Errors     []json.RawMessage `json:"errors,omitempty"`
	Extensions json.RawMessage   `json:"extensions,omitempty"`
}

// Dispatcher posts sub-operations to a single subgraph endpoint
type Dispatcher struct {
	subgraph   string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// NewDispatcher creates a dispatcher for one subgraph endpoint. A zero
// timeout selects DefaultTimeout.
func NewDispatcher(subgraph, baseURL string, timeout time.Duration,
	logger *slog.Logger, metrics *metric.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		subgraph:   subgraph,
		url:        strings.TrimSuffix(baseURL, "/") + "/graphql",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Subgraph returns the subgraph name this dispatcher serves
func (d *Dispatcher) Subgraph() string {
	return d.subgraph
}

// Dispatch posts one sub-operation and decodes the reply. Subgraph errors in
// a 2xx reply are returned inside the Response, not as a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, authCtx *auth.Context) (*Response, error) {
	start := time.Now()
	resp, err := d.post(ctx, req, authCtx)
	if err != nil {
		d.metrics.ObserveSubgraphRequest(d.subgraph, "error", time.Since(start).Seconds())
		return nil, err
	}
	d.metrics.ObserveSubgraphRequest(d.subgraph, "ok", time.Since(start).Seconds())
	return resp, nil
}

// post builds the outbound request with exactly the router's headers
func (d *Dispatcher) post(ctx context.Context, req Request, authCtx *auth.Context) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "post", "request marshal")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "post", "request build")
	}

	// The outbound header set is built from scratch: the client's
	// Authorization header and cookies must never reach a subgraph
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(SignatureHeader, routerSignature)

	if authCtx != nil {
		if userID, ok := authCtx.UserID(); ok {
			httpReq.Header.Set(UserIDHeader, userID)
		}
		if scopes, ok := authCtx.Scopes(); ok {
			encoded, err := json.Marshal(scopes)
			if err != nil {
				return nil, errors.WrapInvalid(err, "Dispatcher", "post", "scope encode")
			}
			httpReq.Header.Set(ShareScopesHeader, string(encoded))
		}
	}

	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: subgraph %s unreachable: %v", errors.ErrSubgraphFailure, d.subgraph, err),
			"Dispatcher", "post", "subgraph request")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: subgraph %s returned status %d", errors.ErrSubgraphFailure, d.subgraph, httpResp.StatusCode),
			"Dispatcher", "post", "subgraph response")
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: subgraph %s body read: %v", errors.ErrSubgraphFailure, d.subgraph, err),
			"Dispatcher", "post", "subgraph response read")
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: subgraph %s reply decode: %v", errors.ErrSubgraphFailure, d.subgraph, err),
			"Dispatcher", "post", "subgraph response decode")
	}

	return &resp, nil
}
