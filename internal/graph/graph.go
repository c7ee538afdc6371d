// Package graph builds the directed interaction graph from a completed
// search's corpus slice and persists it as artifact files: an edge-list text
// file and a label-map JSON object, addressed by a generated network id.
package graph

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

const (
	// UnknownLabel is the sentinel display name for nodes whose label was
	// never discovered.
	UnknownLabel = "x"

	idPrefix = "network_"
	idLength = 10

	edgeExtension  = ".txt"
	labelExtension = ".json"
)

const idLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Edge is a single directed interaction. Duplicate edges are permitted and
// preserved: ranking weights multiplicity implicitly via degree.
type Edge struct {
	Source string
	Target string
}

// Graph is a directed interaction graph. Nodes are user ids (channel owners,
// commenters, repliers); node order is first-seen order, which fixes the
// tie-break order of ranking algorithms that iterate nodes.
type Graph struct {
	ID     string
	Edges  []Edge
	labels map[string]string
	nodes  []string
	seen   map[string]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		labels: make(map[string]string),
		seen:   make(map[string]bool),
	}
}

// AddEdge appends a directed edge, registering unseen endpoints in node
// order. Duplicates are not collapsed.
func (g *Graph) AddEdge(source, target string) {
	g.Edges = append(g.Edges, Edge{Source: source, Target: target})
	g.addNode(source)
	g.addNode(target)
}

func (g *Graph) addNode(id string) {
	if !g.seen[id] {
		g.seen[id] = true
		g.nodes = append(g.nodes, id)
	}
}

// Nodes returns all node ids in first-seen order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// SetLabel records a display name for a node.
func (g *Graph) SetLabel(id, label string) {
	g.labels[id] = label
}

// RemoveLabel drops a node's display name.
func (g *Graph) RemoveLabel(id string) {
	delete(g.labels, id)
}

// Label returns a node's display name, falling back to the sentinel when
// unknown.
func (g *Graph) Label(id string) string {
	if label, ok := g.labels[id]; ok && label != "" {
		return label
	}
	return UnknownLabel
}

// Labels returns the label map.
func (g *Graph) Labels() map[string]string {
	return g.labels
}

// encodeEdges renders the edge list, one "source target" pair per line.
func (g *Graph) encodeEdges() []byte {
	var buf bytes.Buffer
	for _, e := range g.Edges {
		buf.WriteString(e.Source)
		buf.WriteByte(' ')
		buf.WriteString(e.Target)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func decodeEdges(data []byte, g *Graph) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return fmt.Errorf("malformed edge line %q", line)
		}
		g.AddEdge(parts[0], parts[1])
	}
	return scanner.Err()
}

// Export persists the graph's edge list and label map under a fresh
// collision-checked network id, which it assigns to the graph and returns.
func Export(ctx context.Context, store crawl.ArtifactStore, g *Graph) (string, error) {
	id, err := newNetworkID(ctx, store)
	if err != nil {
		return "", err
	}
	if _, err := store.Put(ctx, id+edgeExtension, "text/plain", g.encodeEdges()); err != nil {
		return "", fmt.Errorf("store edge list: %w", err)
	}
	labels, err := json.Marshal(g.labels)
	if err != nil {
		return "", fmt.Errorf("marshal labels: %w", err)
	}
	if _, err := store.Put(ctx, id+labelExtension, "application/json", labels); err != nil {
		return "", fmt.Errorf("store labels: %w", err)
	}
	g.ID = id
	return id, nil
}

// Load reads a previously exported graph back by its network id.
func Load(ctx context.Context, store crawl.ArtifactStore, id string) (*Graph, error) {
	edges, err := store.Get(ctx, id+edgeExtension)
	if err != nil {
		return nil, fmt.Errorf("load edge list: %w", err)
	}
	g := New()
	g.ID = id
	if err := decodeEdges(edges, g); err != nil {
		return nil, fmt.Errorf("decode edge list: %w", err)
	}
	labels, err := store.Get(ctx, id+labelExtension)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	if err := json.Unmarshal(labels, &g.labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return g, nil
}

// newNetworkID generates a random network id, retrying until it does not
// collide with an existing artifact.
func newNetworkID(ctx context.Context, store crawl.ArtifactStore) (string, error) {
	for {
		id, err := randomID()
		if err != nil {
			return "", err
		}
		exists, err := store.Exists(ctx, id+edgeExtension)
		if err != nil {
			return "", fmt.Errorf("check network id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
}

func randomID() (string, error) {
	letters := make([]byte, idLength)
	for i := range letters {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idLetters))))
		if err != nil {
			return "", fmt.Errorf("generate network id: %w", err)
		}
		letters[i] = idLetters[n.Int64()]
	}
	return idPrefix + string(letters), nil
}
