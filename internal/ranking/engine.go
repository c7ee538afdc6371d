// Package ranking scores interaction-graph nodes with a selectable
// centrality algorithm and persists the results alongside the graph.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
	"github.com/audiencegraph/influence-crawler/internal/graph"
	"github.com/audiencegraph/influence-crawler/internal/metrics"
)

// Supported algorithm names.
const (
	AlgorithmBetweenness = "betweenness-centrality"
	AlgorithmDegree      = "degree-centrality"
	AlgorithmCloseness   = "closeness-centrality"
	AlgorithmEigenvector = "eigenvector-centrality"
	AlgorithmLoad        = "load-centrality"
	AlgorithmHarmonic    = "harmonic-centrality"
	AlgorithmPageRank    = "page-rank"
	AlgorithmVoteRank    = "vote-rank"
)

const (
	pageRankDamping   = 0.9
	pageRankTolerance = 1e-6

	powerIterations = 100
	powerTolerance  = 1e-6
)

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	return []string{
		AlgorithmBetweenness,
		AlgorithmDegree,
		AlgorithmCloseness,
		AlgorithmEigenvector,
		AlgorithmLoad,
		AlgorithmHarmonic,
		AlgorithmPageRank,
		AlgorithmVoteRank,
	}
}

// RankEntry pairs a node id with its computed score.
type RankEntry struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

// RankResult is the persisted outcome of one ranking run. A re-rank fully
// replaces it; it is never partially updated.
type RankResult struct {
	GraphID    string      `json:"graph_id"`
	Algorithm  string      `json:"algorithm"`
	ComputedAt time.Time   `json:"computed_at"`
	Entries    []RankEntry `json:"entries"`
}

// Engine computes node rankings and stores them as artifacts.
type Engine struct {
	artifacts crawl.ArtifactStore
	publisher crawl.Publisher
	topic     string
	clock     crawl.Clock
	logger    *zap.Logger
}

// NewEngine constructs an Engine. Publisher and topic may be empty when no
// completion events are wanted.
func NewEngine(artifacts crawl.ArtifactStore, publisher crawl.Publisher, topic string, clock crawl.Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		artifacts: artifacts,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
	}
}

// Rank scores every node of g with the named algorithm. Unknown names fail
// with crawl.ErrUnknownAlgorithm before any state is touched. Entries come
// back in non-increasing score order.
func (e *Engine) Rank(g *graph.Graph, algorithm string) (*RankResult, error) {
	start := time.Now()
	var entries []RankEntry
	switch algorithm {
	case AlgorithmVoteRank:
		entries = voteRank(g, 0)
	case AlgorithmBetweenness, AlgorithmLoad:
		// Load centrality is served by the betweenness computation; the
		// two only differ on weighted graphs, and edges here are unweighted.
		entries = sortedEntries(g, betweenness(g))
	case AlgorithmDegree:
		entries = sortedEntries(g, degree(g))
	case AlgorithmCloseness:
		entries = sortedEntries(g, closeness(g))
	case AlgorithmHarmonic:
		entries = sortedEntries(g, harmonic(g))
	case AlgorithmEigenvector:
		entries = sortedEntries(g, eigenvector(g))
	case AlgorithmPageRank:
		entries = sortedEntries(g, pageRank(g))
	default:
		return nil, fmt.Errorf("%w: %q", crawl.ErrUnknownAlgorithm, algorithm)
	}

	metrics.ObserveRanking(algorithm, time.Since(start))
	e.logger.Info("ranking computed",
		zap.String("algorithm", algorithm),
		zap.String("graph_id", g.ID),
		zap.Int("nodes", len(g.Nodes())),
		zap.Int("ranked", len(entries)),
	)
	return &RankResult{
		GraphID:    g.ID,
		Algorithm:  algorithm,
		ComputedAt: e.clock.Now(),
		Entries:    entries,
	}, nil
}

// Run ranks the graph, persists the result and publishes a completion
// event. The stored result is replaced wholesale.
func (e *Engine) Run(ctx context.Context, g *graph.Graph, algorithm string) (*RankResult, error) {
	result, err := e.Rank(g, algorithm)
	if err != nil {
		return nil, err
	}
	if err := e.StoreResult(ctx, result); err != nil {
		return nil, err
	}
	if e.publisher != nil && e.topic != "" {
		if _, err := e.publisher.Publish(ctx, e.topic, map[string]any{
			"event":     "ranking.completed",
			"graph_id":  result.GraphID,
			"algorithm": result.Algorithm,
			"ranked":    len(result.Entries),
		}); err != nil {
			e.logger.Warn("publish ranking event failed", zap.Error(err))
		}
	}
	return result, nil
}

// StoreResult persists a rank result next to its graph artifacts.
func (e *Engine) StoreResult(ctx context.Context, result *RankResult) error {
	if result == nil || result.GraphID == "" {
		return fmt.Errorf("rank result graph id is required")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal rank result: %w", err)
	}
	if _, err := e.artifacts.Put(ctx, resultKey(result.GraphID), "application/json", data); err != nil {
		return fmt.Errorf("store rank result: %w", err)
	}
	return nil
}

// LoadResult reads a previously stored rank result back by graph id.
func (e *Engine) LoadResult(ctx context.Context, graphID string) (*RankResult, error) {
	data, err := e.artifacts.Get(ctx, resultKey(graphID))
	if err != nil {
		return nil, fmt.Errorf("load rank result: %w", err)
	}
	var result RankResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode rank result: %w", err)
	}
	return &result, nil
}

func resultKey(graphID string) string {
	return "ranks_" + graphID + ".json"
}

// sortedEntries orders scores non-increasing, breaking ties by node order.
func sortedEntries(g *graph.Graph, scores map[string]float64) []RankEntry {
	nodes := g.Nodes()
	entries := make([]RankEntry, 0, len(nodes))
	for _, id := range nodes {
		entries = append(entries, RankEntry{NodeID: id, Score: scores[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// gonumView maps the string-keyed multigraph onto a simple directed gonum
// graph: parallel edges collapse and self-loops are skipped, which the
// delegated shortest-path centralities require.
func gonumView(g *graph.Graph) (*simple.DirectedGraph, []string) {
	nodes := g.Nodes()
	index := make(map[string]int64, len(nodes))
	dg := simple.NewDirectedGraph()
	for i, id := range nodes {
		index[id] = int64(i)
		dg.AddNode(simple.Node(int64(i)))
	}
	for _, e := range g.Edges {
		from, to := index[e.Source], index[e.Target]
		if from == to {
			continue
		}
		dg.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}
	return dg, nodes
}

func fromGonum(nodes []string, scores map[int64]float64) map[string]float64 {
	out := make(map[string]float64, len(nodes))
	for i, id := range nodes {
		out[id] = scores[int64(i)]
	}
	return out
}

func betweenness(g *graph.Graph) map[string]float64 {
	dg, nodes := gonumView(g)
	return fromGonum(nodes, network.Betweenness(dg))
}

func closeness(g *graph.Graph) map[string]float64 {
	dg, nodes := gonumView(g)
	paths := path.DijkstraAllPaths(dg)
	return fromGonum(nodes, network.Closeness(dg, paths))
}

func harmonic(g *graph.Graph) map[string]float64 {
	dg, nodes := gonumView(g)
	paths := path.DijkstraAllPaths(dg)
	return fromGonum(nodes, network.Harmonic(dg, paths))
}

func pageRank(g *graph.Graph) map[string]float64 {
	dg, nodes := gonumView(g)
	return fromGonum(nodes, network.PageRank(dg, pageRankDamping, pageRankTolerance))
}

// degree computes degree centrality on the raw edge list, so parallel edges
// weigh in, normalized by n-1.
func degree(g *graph.Graph) map[string]float64 {
	nodes := g.Nodes()
	out := make(map[string]float64, len(nodes))
	for _, id := range nodes {
		out[id] = 0
	}
	for _, e := range g.Edges {
		out[e.Source]++
		out[e.Target]++
	}
	if len(nodes) > 1 {
		norm := float64(len(nodes) - 1)
		for id := range out {
			out[id] /= norm
		}
	}
	return out
}

// eigenvector runs power iteration over the raw edge list: each step a
// node's next value is the sum of the current values of nodes pointing at
// it, then the vector is L2-normalized.
func eigenvector(g *graph.Graph) map[string]float64 {
	nodes := g.Nodes()
	n := len(nodes)
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}
	cur := make(map[string]float64, n)
	for _, id := range nodes {
		cur[id] = 1 / float64(n)
	}
	for iter := 0; iter < powerIterations; iter++ {
		next := make(map[string]float64, n)
		for _, e := range g.Edges {
			next[e.Target] += cur[e.Source]
		}
		var norm float64
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		var delta float64
		for _, id := range nodes {
			scaled := next[id] / norm
			delta += math.Abs(scaled - cur[id])
			cur[id] = scaled
		}
		if delta < float64(n)*powerTolerance {
			break
		}
	}
	for _, id := range nodes {
		out[id] = cur[id]
	}
	return out
}
