package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
	"github.com/audiencegraph/influence-crawler/internal/graph"
	"github.com/audiencegraph/influence-crawler/internal/storage/memory"
)

type stubPublisher struct {
	topics   []string
	payloads []any
}

func (p *stubPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

func testGraph() *graph.Graph {
	g := graph.New()
	g.ID = "network_testgraphx"
	g.AddEdge("chan-1", "user-a")
	g.AddEdge("user-a", "user-b")
	g.AddEdge("chan-1", "user-b")
	return g
}

func TestRankUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	engine := NewEngine(store, nil, "", nil, nil)

	_, err := engine.Rank(testGraph(), "max-flow")
	require.ErrorIs(t, err, crawl.ErrUnknownAlgorithm)

	// Failure leaves stored state untouched.
	ok, err := store.Exists(context.Background(), resultKey("network_testgraphx"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRankDegreeCentrality(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	engine := NewEngine(memory.NewBlobStore(), nil, "", nil, nil)
	result, err := engine.Rank(g, AlgorithmDegree)
	require.NoError(t, err)

	require.Equal(t, "b", result.Entries[0].NodeID)
	require.InDelta(t, 1.0, result.Entries[0].Score, 1e-9)
	require.Len(t, result.Entries, 3)
}

func TestRankEntriesAreNonIncreasing(t *testing.T) {
	t.Parallel()

	engine := NewEngine(memory.NewBlobStore(), nil, "", nil, nil)
	for _, algorithm := range Algorithms() {
		result, err := engine.Rank(testGraph(), algorithm)
		require.NoError(t, err, algorithm)
		for i := 1; i < len(result.Entries); i++ {
			require.GreaterOrEqual(t,
				result.Entries[i-1].Score, result.Entries[i].Score, algorithm)
		}
	}
}

func TestRankPageRankFavorsSinks(t *testing.T) {
	t.Parallel()

	// Both chan-1 edges and the user-a edge point at user-b.
	engine := NewEngine(memory.NewBlobStore(), nil, "", nil, nil)
	result, err := engine.Rank(testGraph(), AlgorithmPageRank)
	require.NoError(t, err)
	require.Equal(t, "user-b", result.Entries[0].NodeID)
}

func TestRankEmptyGraphVoteRank(t *testing.T) {
	t.Parallel()

	engine := NewEngine(memory.NewBlobStore(), nil, "", nil, nil)
	result, err := engine.Rank(graph.New(), AlgorithmVoteRank)
	require.NoError(t, err)
	require.Empty(t, result.Entries)
}

func TestStoreAndLoadResult(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	engine := NewEngine(store, nil, "", nil, nil)

	result, err := engine.Rank(testGraph(), AlgorithmVoteRank)
	require.NoError(t, err)
	require.NoError(t, engine.StoreResult(context.Background(), result))

	ok, err := store.Exists(context.Background(), "ranks_network_testgraphx.json")
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := engine.LoadResult(context.Background(), "network_testgraphx")
	require.NoError(t, err)
	require.Equal(t, result.Algorithm, loaded.Algorithm)
	require.Equal(t, result.Entries, loaded.Entries)
}

func TestRunStoresAndPublishes(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	publisher := &stubPublisher{}
	engine := NewEngine(store, publisher, "rankings", nil, nil)

	result, err := engine.Run(context.Background(), testGraph(), AlgorithmVoteRank)
	require.NoError(t, err)
	require.NotEmpty(t, result.Entries)
	require.Equal(t, []string{"rankings"}, publisher.topics)

	ok, err := store.Exists(context.Background(), resultKey(result.GraphID))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunUnknownAlgorithmDoesNotPublish(t *testing.T) {
	t.Parallel()

	publisher := &stubPublisher{}
	engine := NewEngine(memory.NewBlobStore(), publisher, "rankings", nil, nil)

	_, err := engine.Run(context.Background(), testGraph(), "nope")
	require.ErrorIs(t, err, crawl.ErrUnknownAlgorithm)
	require.Empty(t, publisher.topics)
}
