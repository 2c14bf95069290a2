package supergraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/Gratheon/graphql-router/errors"
	"github.com/Gratheon/graphql-router/registry"
)

// scriptedFetcher replays a fixed sequence of registry snapshots, repeating
// the last one once exhausted
type scriptedFetcher struct {
	snapshots []snapshot
	calls     int
}

type snapshot struct {
	descriptors []registry.SubgraphDescriptor
	sawError    bool
}

func (f *scriptedFetcher) Fetch(_ context.Context) ([]registry.SubgraphDescriptor, bool) {
	i := f.calls
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.calls++
	s := f.snapshots[i]
	return s.descriptors, s.sawError
}

func desc(t *testing.T, name, sdl string) registry.SubgraphDescriptor {
	t.Helper()
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: sdl})
	require.NoError(t, err)
	return registry.SubgraphDescriptor{
		Name:     name,
		URL:      "http://" + name + ":4000",
		Version:  "v1",
		TypeDefs: sdl,
		AST:      doc,
	}
}

type publishRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (p *publishRecorder) publish(sdl string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sdl)
}

func (p *publishRecorder) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func TestInitialize_ComposesAndPublishesOnce(t *testing.T) {
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: []registry.SubgraphDescriptor{
			desc(t, "apiary", "type Query { apiaries: [String] }"),
			desc(t, "hive", "type Query { hives: [String] }"),
		}},
	}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	sg, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.NotNil(t, sg)
	assert.Equal(t, uint64(1), sg.Generation)
	assert.Contains(t, sg.SDL, "apiaries")
	assert.Contains(t, sg.SDL, "hives")
	assert.Equal(t, "http://apiary:4000", sg.Subgraphs["apiary"])
	assert.Len(t, rec.all(), 1)
	assert.Same(t, sg, m.Current())
}

func TestInitialize_Twice(t *testing.T) {
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: []registry.SubgraphDescriptor{desc(t, "a", "type Query { x: Int }")}},
	}}
	m := NewManager(fetcher, 0, nil, nil, nil)
	_, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	_, _, err = m.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))
}

// Identical registry snapshots across ticks must not republish
func TestCycle_IdempotentSnapshots(t *testing.T) {
	same := []registry.SubgraphDescriptor{
		desc(t, "apiary", "type Query { apiaries: [String] }"),
	}
	fetcher := &scriptedFetcher{snapshots: []snapshot{{descriptors: same}}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	sg, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	m.cycle(context.Background())
	m.cycle(context.Background())
	m.cycle(context.Background())

	assert.Len(t, rec.all(), 1, "publish must fire only for the initial build")
	assert.Same(t, sg, m.Current())
	assert.Equal(t, uint64(1), m.Current().Generation)
}

// A changed subgraph SDL triggers exactly one more publish
func TestCycle_ChangeDetection(t *testing.T) {
	v1 := []registry.SubgraphDescriptor{
		desc(t, "apiary", "type Query { apiaries: [String] }"),
		desc(t, "hive", "type Query { hives: [String] }"),
	}
	v2 := []registry.SubgraphDescriptor{
		desc(t, "apiary", "type Query { apiaries: [String] }"),
		desc(t, "hive", "type Query { hives: [String] frames: Int }"),
	}
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: v1},
		{descriptors: v2},
		{descriptors: v2},
	}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	_, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	m.cycle(context.Background())
	require.Len(t, rec.all(), 2)
	assert.Contains(t, rec.all()[1], "frames")
	assert.Equal(t, uint64(2), m.Current().Generation)

	m.cycle(context.Background())
	assert.Len(t, rec.all(), 2, "identical follow-up snapshot must not republish")
}

// Registry blackout keeps serving the last good supergraph byte-identically
func TestCycle_RegistryBlackout(t *testing.T) {
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: []registry.SubgraphDescriptor{
			desc(t, "apiary", "type Query { apiaries: [String] }"),
		}},
		{sawError: true},
	}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	sg, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	before := sg.SDL
	m.cycle(context.Background())
	m.cycle(context.Background())
	m.cycle(context.Background())

	assert.Len(t, rec.all(), 1)
	assert.Equal(t, before, m.Current().SDL)
	assert.Same(t, sg, m.Current())
}

// Composition failure keeps serving the last good supergraph
func TestCycle_CompositionFailureKeepsServing(t *testing.T) {
	good := []registry.SubgraphDescriptor{
		desc(t, "a", "type Query { things: [Thing] } type Thing { id: ID! size: Int }"),
	}
	conflicting := []registry.SubgraphDescriptor{
		desc(t, "a", "type Query { things: [Thing] } type Thing { id: ID! size: Int }"),
		desc(t, "b", "type Query { others: [Thing] } type Thing { id: ID! size: String }"),
	}
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: good},
		{descriptors: conflicting},
	}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	sg, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	m.cycle(context.Background())

	assert.Len(t, rec.all(), 1)
	assert.Equal(t, sg.SDL, m.Current().SDL)
}

// With no subgraphs and no history the gateway serves the fallback schema
func TestInitialize_FallbackSchema(t *testing.T) {
	fetcher := &scriptedFetcher{snapshots: []snapshot{{sawError: true}}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	sg, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	assert.Contains(t, sg.SDL, "_status")
	require.NotNil(t, sg.Schema)
	assert.NotNil(t, sg.Schema.Query)
	assert.Empty(t, sg.Subgraphs)
	assert.Len(t, rec.all(), 1)

	// Fallback is not retained as a valid composition, but repeating it must
	// not republish
	m.cycle(context.Background())
	assert.Len(t, rec.all(), 1)
}

// Fallback is replaced as soon as the registry recovers
func TestCycle_RecoveryFromFallback(t *testing.T) {
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{sawError: true},
		{descriptors: []registry.SubgraphDescriptor{
			desc(t, "apiary", "type Query { apiaries: [String] }"),
		}},
	}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 0, rec.publish, nil, nil)
	_, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	m.cycle(context.Background())

	require.Len(t, rec.all(), 2)
	assert.Contains(t, rec.all()[1], "apiaries")
	assert.Equal(t, uint64(2), m.Current().Generation)
}

// Unparseable-only snapshots with no history fail hard
func TestInitialize_NoComposableSubgraphs(t *testing.T) {
	broken := registry.SubgraphDescriptor{Name: "broken", TypeDefs: "not sdl", AST: nil}
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: []registry.SubgraphDescriptor{broken}},
	}}

	m := NewManager(fetcher, 0, nil, nil, nil)
	_, _, err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoSubgraphs))
}

func TestCancel_Idempotent(t *testing.T) {
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: []registry.SubgraphDescriptor{desc(t, "a", "type Query { x: Int }")}},
	}}

	m := NewManager(fetcher, 5*time.Millisecond, nil, nil, nil)
	_, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePolling, m.State())

	cancel()
	cancel()
	assert.Equal(t, StateStopped, m.State())

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("poll loop did not exit after cancel")
	}
}

func TestPollLoop_RunsCycles(t *testing.T) {
	v1 := []registry.SubgraphDescriptor{desc(t, "a", "type Query { x: Int }")}
	v2 := []registry.SubgraphDescriptor{desc(t, "a", "type Query { x: Int y: Int }")}
	fetcher := &scriptedFetcher{snapshots: []snapshot{
		{descriptors: v1},
		{descriptors: v2},
	}}
	rec := &publishRecorder{}

	m := NewManager(fetcher, 5*time.Millisecond, rec.publish, nil, nil)
	_, cancel, err := m.Initialize(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool {
		return m.Current().Generation == 2
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.all(), 2)
}
