// Package registry provides the schema registry client. It fetches subgraph
// descriptors from the registry service and parses their SDL for composition.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/pkg/retry"
)

// SubgraphDescriptor describes one subgraph as reported by the registry.
// Immutable once produced.
type SubgraphDescriptor struct {
	// Name uniquely identifies the subgraph
	Name string
	// URL is the subgraph's GraphQL endpoint base ("http://host:port").
	// Empty when the registry omitted it; such descriptors are filtered
	// before dispatch.
	URL string
	// Version is an opaque registry-assigned version string
	Version string
	// TypeDefs is the subgraph SDL text
	TypeDefs string
	// AST is the parsed SDL, nil when parsing failed
	AST *ast.SchemaDocument
}

// envelope is the registry response format for /schema/latest
type envelope struct {
	Data []entry `json:"data"`
}

type entry struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	Version          string `json:"version"`
	TypeDefs         string `json:"type_defs"`
	TypeDefsOriginal string `json:"type_defs_original"`
}

// Client fetches subgraph descriptors from the schema registry
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	retryCfg   retry.Config
}

// NewClient creates a registry client for the given base URL
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retryCfg: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
}

// Fetch retrieves the latest subgraph descriptors. It never returns an error:
// network or decode failures yield an empty descriptor list and sawError=true
// so the supergraph manager can keep serving its last good schema.
func (c *Client) Fetch(ctx context.Context) (descriptors []SubgraphDescriptor, sawError bool) {
	body, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]byte, error) {
		return c.get(ctx)
	})
	if err != nil {
		c.logger.Warn("registry fetch failed", "url", c.baseURL, "error", err)
		return nil, true
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.Warn("registry response decode failed", "error", err)
		return nil, true
	}

	descriptors = make([]SubgraphDescriptor, 0, len(env.Data))
	for _, e := range env.Data {
		d, ok := c.toDescriptor(e)
		if !ok {
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, false
}

// get issues the registry request and returns the raw body
func (c *Client) get(ctx context.Context) ([]byte, error) {
	url := c.baseURL + "/schema/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.NonRetryable(errors.WrapInvalid(err, "RegistryClient", "get", "request build"))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "RegistryClient", "get", "registry request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: status %d", errors.ErrRegistryUnavailable, resp.StatusCode),
			"RegistryClient", "get", "registry response")
	}

	return io.ReadAll(resp.Body)
}

// toDescriptor converts a registry entry into a descriptor. Entries with
// unparseable SDL are dropped; entries without a URL are kept (downstream
// filtering decides) with a warning.
func (c *Client) toDescriptor(e entry) (SubgraphDescriptor, bool) {
	if e.TypeDefs == "" {
		c.logger.Warn("subgraph has empty type_defs, dropping", "subgraph", e.Name)
		return SubgraphDescriptor{}, false
	}

	doc, err := parser.ParseSchema(&ast.Source{Name: e.Name, Input: e.TypeDefs})
	if err != nil {
		c.logger.Warn("subgraph SDL parse failed, dropping",
			"subgraph", e.Name, "error", err)
		return SubgraphDescriptor{}, false
	}

	if e.URL == "" {
		c.logger.Warn("subgraph has no URL, requests to it will fail", "subgraph", e.Name)
	}

	return SubgraphDescriptor{
		Name:     e.Name,
		URL:      serviceURL(e.URL),
		Version:  e.Version,
		TypeDefs: e.TypeDefs,
		AST:      doc,
	}, true
}

// serviceURL rewrites a registry-reported service address into the http form
// the dispatcher expects
func serviceURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "http://" + raw
}
