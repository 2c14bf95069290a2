// Package auth resolves request credentials to an identity.
//
// Three credential kinds are recognized, in strict priority: a bearer API
// token validated against the identity service, a signed session JWT from
// cookie or header, and a share token granting scope-bounded access. A
// malformed higher-priority credential fails the request; lower priorities
// are never consulted.
package auth

import (
	"github.com/Gratheon/graphql-router/scope"
)

// Kind discriminates the auth context variants
type Kind int

const (
	// Anonymous means no credential was presented
	Anonymous Kind = iota
	// Identified means a bearer or session credential resolved to a user
	Identified
	// Shared means a share token resolved to a user plus a scope allow-list
	Shared
	// Failed means a credential was presented but did not validate
	Failed
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case Anonymous:
		return "anonymous"
	case Identified:
		return "identified"
	case Shared:
		return "shared"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Context is the resolved identity of one request. Built once by the
// pipeline, immutable afterwards, never shared across requests.
type Context struct {
	kind   Kind
	userID string
	scopes *scope.Set
	err    error
}

// AnonymousContext returns the context for a request without credentials
func AnonymousContext() *Context {
	return &Context{kind: Anonymous}
}

// IdentifiedContext returns the context for a validated user credential
func IdentifiedContext(userID string) *Context {
	return &Context{kind: Identified, userID: userID}
}

// SharedContext returns the context for a validated share token
func SharedContext(userID string, scopes *scope.Set) *Context {
	return &Context{kind: Shared, userID: userID, scopes: scopes}
}

// FailedContext returns the context for a credential that did not validate
func FailedContext(err error) *Context {
	return &Context{kind: Failed, err: err}
}

// Kind returns the variant discriminator
func (c *Context) Kind() Kind {
	return c.kind
}

// UserID returns the resolved user and whether one is present
func (c *Context) UserID() (string, bool) {
	return c.userID, c.kind == Identified || c.kind == Shared
}

// Scopes returns the share-token scope set and whether one is present
func (c *Context) Scopes() (*scope.Set, bool) {
	return c.scopes, c.kind == Shared
}

// Err returns the credential failure, nil unless Kind is Failed
func (c *Context) Err() error {
	return c.err
}
