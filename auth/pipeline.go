package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/metric"
)

// Credential carriers recognized by the pipeline
const (
	// HeaderShareToken carries a share token
	HeaderShareToken = "X-Share-Token"
	// HeaderSessionToken carries a session JWT outside a cookie
	HeaderSessionToken = "token"
	// SessionCookie is the session JWT cookie name
	SessionCookie = "gratheon_session"
)

// Pipeline maps request credentials to an auth context
type Pipeline struct {
	identity   *IdentityClient
	privateKey string
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// NewPipeline creates an auth pipeline. privateKey is the shared secret for
// session JWT verification.
func NewPipeline(identity *IdentityClient, privateKey string,
	logger *slog.Logger, metrics *metric.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		identity:   identity,
		privateKey: privateKey,
		logger:     logger,
		metrics:    metrics,
	}
}

// Resolve evaluates credentials in strict priority: bearer token, then
// session JWT, then share token. A present-but-invalid credential fails the
// request without consulting lower priorities; no credential at all is
// anonymous.
func (p *Pipeline) Resolve(r *http.Request) *Context {
	if authz := r.Header.Get("Authorization"); authz != "" {
		return p.resolveBearer(r, authz)
	}

	if session := sessionToken(r); session != "" {
		return p.resolveSession(session)
	}

	if share := r.Header.Get(HeaderShareToken); share != "" {
		return p.resolveShare(r, share)
	}

	return AnonymousContext()
}

// resolveBearer validates an Authorization header against the identity service
func (p *Pipeline) resolveBearer(r *http.Request, authz string) *Context {
	token, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || token == "" {
		p.metrics.ObserveAuthFailure("bearer")
		return FailedContext(errors.Wrap(errors.ErrUnauthenticated,
			"Pipeline", "resolveBearer", "malformed authorization header"))
	}

	userID, err := p.identity.ValidateAPIToken(r.Context(), token)
	if err != nil {
		p.metrics.ObserveAuthFailure("bearer")
		p.logger.Debug("api token rejected", "error", err)
		return FailedContext(err)
	}
	return IdentifiedContext(userID)
}

// resolveSession verifies a session JWT in-process
func (p *Pipeline) resolveSession(token string) *Context {
	userID, err := verifySession(token, p.privateKey)
	if err != nil {
		p.metrics.ObserveAuthFailure("session")
		p.logger.Debug("session token rejected", "error", err)
		return FailedContext(err)
	}
	return IdentifiedContext(userID)
}

// resolveShare validates a share token against the identity service
func (p *Pipeline) resolveShare(r *http.Request, token string) *Context {
	userID, scopes, err := p.identity.ValidateShareToken(r.Context(), token)
	if err != nil {
		p.metrics.ObserveAuthFailure("share")
		p.logger.Debug("share token rejected", "error", err)
		return FailedContext(err)
	}
	return SharedContext(userID, scopes)
}

// sessionToken extracts a session JWT from the cookie or its header fallback
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get(HeaderSessionToken)
}
