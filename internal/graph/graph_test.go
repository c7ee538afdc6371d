package graph

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiencegraph/influence-crawler/internal/storage/memory"
)

func TestAddEdgeKeepsDuplicatesAndNodeOrder(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	require.Len(t, g.Edges, 3)
	require.Equal(t, []string{"a", "b", "c"}, g.Nodes())
}

func TestLabelFallsBackToSentinel(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("a", "b")
	g.SetLabel("a", "Alice")

	require.Equal(t, "Alice", g.Label("a"))
	require.Equal(t, UnknownLabel, g.Label("b"))
	require.Equal(t, UnknownLabel, g.Label("never-seen"))
}

func TestExportLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	g := New()
	g.AddEdge("chan-1", "user-a")
	g.AddEdge("user-a", "user-b")
	g.AddEdge("chan-1", "user-a")
	g.SetLabel("chan-1", "A Channel")
	g.SetLabel("user-a", "Alice")

	id, err := Export(context.Background(), store, g)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^network_[A-Za-z]{10}$`), id)
	require.Equal(t, id, g.ID)

	loaded, err := Load(context.Background(), store, id)
	require.NoError(t, err)
	require.Equal(t, g.Edges, loaded.Edges)
	require.Equal(t, g.Nodes(), loaded.Nodes())
	require.Equal(t, "Alice", loaded.Label("user-a"))
	require.Equal(t, UnknownLabel, loaded.Label("user-b"))
}

func TestExportedEdgeListFormat(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	g := New()
	g.AddEdge("src", "dst")
	g.AddEdge("dst", "other")

	id, err := Export(context.Background(), store, g)
	require.NoError(t, err)

	data, err := store.Get(context.Background(), id+".txt")
	require.NoError(t, err)
	require.Equal(t, "src dst\ndst other\n", string(data))
}
