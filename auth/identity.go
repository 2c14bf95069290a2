package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/scope"
)

// GraphQL operations sent to the identity service
const (
	validateAPITokenMutation = `mutation ValidateApiToken($token: String) {
	validateApiToken(token: $token) {
		__typename
		... on TokenUser { id }
		... on Error { code }
	}
}`

	validateShareTokenQuery = `query ValidateShareToken($token: String!) {
	validateShareToken(token: $token) {
		__typename
		... on ShareTokenDetails { id name scopes userId }
		... on Error { code }
	}
}`
)

// IdentityClient talks to the identity service's GraphQL endpoint
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIdentityClient creates an identity client for the given base URL
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// gqlRequest is the JSON body of an identity service call
type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// gqlReply is the JSON envelope of an identity service response
type gqlReply struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// apiTokenResult is the validateApiToken union reply
type apiTokenResult struct {
	Typename string `json:"__typename"`
	ID       string `json:"id"`
	Code     string `json:"code"`
}

// shareTokenResult is the validateShareToken union reply
type shareTokenResult struct {
	Typename string          `json:"__typename"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Scopes   json.RawMessage `json:"scopes"`
	UserID   string          `json:"userId"`
}

// ValidateAPIToken validates a bearer API token. An invalid token returns
// ErrUnauthenticated; transport failures return a transient error so the
// formatter answers 500 rather than 401.
func (c *IdentityClient) ValidateAPIToken(ctx context.Context, token string) (string, error) {
	raw, err := c.post(ctx, "ValidateApiToken", validateAPITokenMutation, token)
	if err != nil {
		return "", err
	}

	var result apiTokenResult
	if err := json.Unmarshal(raw["validateApiToken"], &result); err != nil {
		return "", errors.WrapTransient(err, "IdentityClient", "ValidateAPIToken", "reply decode")
	}

	if result.Typename != "TokenUser" || result.ID == "" {
		return "", errors.Wrap(errors.ErrUnauthenticated,
			"IdentityClient", "ValidateAPIToken", "api token rejected")
	}
	return result.ID, nil
}

// ValidateShareToken validates a share token and returns the granting user
// plus the scope allow-list. A reply without a userId is rejected.
func (c *IdentityClient) ValidateShareToken(ctx context.Context, token string) (string, *scope.Set, error) {
	raw, err := c.post(ctx, "ValidateShareToken", validateShareTokenQuery, token)
	if err != nil {
		return "", nil, err
	}

	var result shareTokenResult
	if err := json.Unmarshal(raw["validateShareToken"], &result); err != nil {
		return "", nil, errors.WrapTransient(err, "IdentityClient", "ValidateShareToken", "reply decode")
	}

	if result.Typename != "ShareTokenDetails" {
		return "", nil, errors.Wrap(errors.ErrUnauthenticated,
			"IdentityClient", "ValidateShareToken", "share token rejected")
	}
	if result.UserID == "" {
		return "", nil, errors.Wrap(errors.ErrUnauthenticated,
			"IdentityClient", "ValidateShareToken", "share token has no user")
	}

	scopes, err := scope.Parse(result.Scopes)
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrUnauthenticated,
			"IdentityClient", "ValidateShareToken", "share token scopes unreadable")
	}

	return result.UserID, scopes, nil
}

// post issues one GraphQL call against the identity service
func (c *IdentityClient) post(ctx context.Context, op, query, token string) (map[string]json.RawMessage, error) {
	body, err := json.Marshal(gqlRequest{
		Query:     query,
		Variables: map[string]any{"token": token},
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "IdentityClient", "post", "request marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapInvalid(err, "IdentityClient", "post", "request build")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "IdentityClient", "post",
			fmt.Sprintf("%s request", op))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapTransient(
			fmt.Errorf("identity service status %d", resp.StatusCode),
			"IdentityClient", "post", fmt.Sprintf("%s response", op))
	}

	var reply gqlReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, errors.WrapTransient(err, "IdentityClient", "post", "response decode")
	}
	if len(reply.Errors) > 0 {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "IdentityClient", "post",
			fmt.Sprintf("%s: %s", op, reply.Errors[0].Message))
	}

	return reply.Data, nil
}
