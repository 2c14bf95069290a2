package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gratheon/graphql-router/auth"
	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/scope"
)

// capture records the last request a fake subgraph saw
type capture struct {
	headers http.Header
	cookies []*http.Cookie
	path    string
}

func subgraphServer(t *testing.T, status int, reply string, cap *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cap != nil {
			cap.headers = r.Header.Clone()
			cap.cookies = r.Cookies()
			cap.path = r.URL.Path
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatch_HeaderInjection(t *testing.T) {
	cap := &capture{}
	srv := subgraphServer(t, 200, `{"data":{"hives":[]}}`, cap)

	d := NewDispatcher("hive", srv.URL, 0, nil, nil)
	scopes := &scope.Set{AllowedQueries: []scope.Entry{{QueryName: "hives"}}}
	authCtx := auth.SharedContext("u7", scopes)

	_, err := d.Dispatch(context.Background(), Request{Query: "{ hives { id } }"}, authCtx)
	require.NoError(t, err)

	assert.Equal(t, "/graphql", cap.path)
	assert.Equal(t, "application/json", cap.headers.Get("Content-Type"))
	assert.NotEmpty(t, cap.headers.Get(SignatureHeader))
	assert.Equal(t, "u7", cap.headers.Get(UserIDHeader))

	var sent scope.Set
	require.NoError(t, json.Unmarshal([]byte(cap.headers.Get(ShareScopesHeader)), &sent))
	require.Len(t, sent.AllowedQueries, 1)
	assert.Equal(t, "hives", sent.AllowedQueries[0].QueryName)
}

func TestDispatch_IdentifiedUserHeaders(t *testing.T) {
	cap := &capture{}
	srv := subgraphServer(t, 200, `{"data":{}}`, cap)

	d := NewDispatcher("apiary", srv.URL, 0, nil, nil)
	_, err := d.Dispatch(context.Background(), Request{Query: "{ apiaries { id } }"},
		auth.IdentifiedContext("u9"))
	require.NoError(t, err)

	assert.Equal(t, "u9", cap.headers.Get(UserIDHeader))
	assert.Empty(t, cap.headers.Get(ShareScopesHeader))
}

func TestDispatch_AnonymousHeaders(t *testing.T) {
	cap := &capture{}
	srv := subgraphServer(t, 200, `{"data":{}}`, cap)

	d := NewDispatcher("apiary", srv.URL, 0, nil, nil)
	_, err := d.Dispatch(context.Background(), Request{Query: "{ apiaries { id } }"},
		auth.AnonymousContext())
	require.NoError(t, err)

	assert.Empty(t, cap.headers.Get(UserIDHeader))
	assert.Empty(t, cap.headers.Get(ShareScopesHeader))
	assert.NotEmpty(t, cap.headers.Get(SignatureHeader))
}

// Client credentials must never leak to subgraphs
func TestDispatch_NeverForwardsClientHeaders(t *testing.T) {
	cap := &capture{}
	srv := subgraphServer(t, 200, `{"data":{}}`, cap)

	d := NewDispatcher("apiary", srv.URL, 0, nil, nil)
	_, err := d.Dispatch(context.Background(), Request{Query: "{ apiaries { id } }"},
		auth.IdentifiedContext("u1"))
	require.NoError(t, err)

	assert.Empty(t, cap.headers.Get("Authorization"))
	assert.Empty(t, cap.headers.Get("Cookie"))
	assert.Empty(t, cap.cookies)
	assert.Empty(t, cap.headers.Get(auth.HeaderShareToken))
	assert.Empty(t, cap.headers.Get(auth.HeaderSessionToken))
}

func TestDispatch_ForwardsSubgraphErrors(t *testing.T) {
	srv := subgraphServer(t, 200,
		`{"data":{"hives":null},"errors":[{"message":"boom","path":["hives"]}]}`, nil)

	d := NewDispatcher("hive", srv.URL, 0, nil, nil)
	resp, err := d.Dispatch(context.Background(), Request{Query: "{ hives { id } }"},
		auth.AnonymousContext())
	require.NoError(t, err)

	require.Len(t, resp.Errors, 1)
	assert.Contains(t, string(resp.Errors[0]), "boom")
}

func TestDispatch_Non2xxStatus(t *testing.T) {
	srv := subgraphServer(t, 502, `bad gateway`, nil)

	d := NewDispatcher("hive", srv.URL, 0, nil, nil)
	_, err := d.Dispatch(context.Background(), Request{Query: "{ hives { id } }"},
		auth.AnonymousContext())
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrSubgraphFailure))
	assert.Contains(t, err.Error(), "hive")
	assert.Contains(t, err.Error(), "502")
}

func TestDispatch_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	d := NewDispatcher("hive", srv.URL, 0, nil, nil)
	_, err := d.Dispatch(context.Background(), Request{Query: "{ hives { id } }"},
		auth.AnonymousContext())
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrSubgraphFailure))
	assert.Contains(t, err.Error(), "hive")
}

func TestDispatch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	t.Cleanup(srv.Close)

	d := NewDispatcher("slow", srv.URL, 20*time.Millisecond, nil, nil)
	_, err := d.Dispatch(context.Background(), Request{Query: "{ x }"}, auth.AnonymousContext())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSubgraphFailure))
}

func TestDispatch_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher("slow", srv.URL, 0, nil, nil)
	_, err := d.Dispatch(ctx, Request{Query: "{ x }"}, auth.AnonymousContext())
	require.Error(t, err)
}
