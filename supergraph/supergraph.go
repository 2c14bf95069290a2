// Package supergraph owns the currently published supergraph and keeps it
// fresh against the schema registry.
//
// The Manager performs the first composition synchronously, then polls the
// registry on a fixed interval in a background task. A new supergraph is
// published atomically: request handlers snapshot the current supergraph once
// and hold that snapshot through planning and dispatch, so a mid-request swap
// never mixes generations.
package supergraph

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/Gratheon/graphql-router/composition"
)

// Supergraph is one immutable published schema generation
type Supergraph struct {
	// SDL is the composed supergraph schema text
	SDL string
	// Schema is the validated schema used for planning
	Schema *ast.Schema
	// Routing assigns root operation fields to subgraphs
	Routing composition.Routing
	// Subgraphs maps subgraph name to its GraphQL endpoint base URL.
	// Subgraphs the registry reported without a URL are absent.
	Subgraphs map[string]string
	// Generation is a monotonic counter, starting at 1
	Generation uint64
}

// State models the manager lifecycle
type State int32

const (
	// StateInitialized is the state before polling starts
	StateInitialized State = iota
	// StatePolling is the state while the background poll loop runs
	StatePolling
	// StateStopped is terminal
	StateStopped
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
