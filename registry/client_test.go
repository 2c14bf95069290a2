package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSDL = `
type Query {
	apiaries: [Apiary]
}

type Apiary {
	id: ID!
	name: String
}
`

func registryServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schema/latest", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_DecodesDescriptors(t *testing.T) {
	srv := registryServer(t, http.StatusOK, `{
		"data": [
			{"name": "apiary", "url": "apiary:4001", "version": "v1",
			 "type_defs": "type Query { apiaries: [String] }",
			 "type_defs_original": "type Query { apiaries: [String] }"}
		]
	}`)

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	require.False(t, sawError)
	require.Len(t, descriptors, 1)
	d := descriptors[0]
	assert.Equal(t, "apiary", d.Name)
	assert.Equal(t, "http://apiary:4001", d.URL)
	assert.Equal(t, "v1", d.Version)
	assert.NotNil(t, d.AST)
}

func TestFetch_PreservesHTTPURLs(t *testing.T) {
	srv := registryServer(t, http.StatusOK, `{
		"data": [
			{"name": "hive", "url": "http://hive:4002", "version": "v1",
			 "type_defs": "type Query { hives: [String] }"}
		]
	}`)

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	require.False(t, sawError)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "http://hive:4002", descriptors[0].URL)
}

func TestFetch_DropsUnparseableSDL(t *testing.T) {
	srv := registryServer(t, http.StatusOK, `{
		"data": [
			{"name": "broken", "url": "broken:4003", "version": "v1",
			 "type_defs": "type Query { unbalanced"},
			{"name": "good", "url": "good:4004", "version": "v1",
			 "type_defs": "type Query { ok: String }"}
		]
	}`)

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	require.False(t, sawError)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "good", descriptors[0].Name)
}

func TestFetch_DropsEmptySDL(t *testing.T) {
	srv := registryServer(t, http.StatusOK, `{
		"data": [{"name": "empty", "url": "empty:4005", "version": "v1", "type_defs": ""}]
	}`)

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	require.False(t, sawError)
	assert.Empty(t, descriptors)
}

func TestFetch_KeepsDescriptorWithoutURL(t *testing.T) {
	srv := registryServer(t, http.StatusOK, `{
		"data": [{"name": "nourl", "version": "v1", "type_defs": "type Query { x: Int }"}]
	}`)

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	require.False(t, sawError)
	require.Len(t, descriptors, 1)
	assert.Empty(t, descriptors[0].URL)
}

func TestFetch_RegistryDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	assert.True(t, sawError)
	assert.Empty(t, descriptors)
}

func TestFetch_Registry500(t *testing.T) {
	srv := registryServer(t, http.StatusInternalServerError, "oops")

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	assert.True(t, sawError)
	assert.Empty(t, descriptors)
}

func TestFetch_MalformedJSON(t *testing.T) {
	srv := registryServer(t, http.StatusOK, `{"data": [`)

	c := NewClient(srv.URL, nil)
	descriptors, sawError := c.Fetch(context.Background())

	assert.True(t, sawError)
	assert.Empty(t, descriptors)
}
