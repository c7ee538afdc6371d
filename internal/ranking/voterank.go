package ranking

import (
	"github.com/audiencegraph/influence-crawler/internal/graph"
)

// voteRank elects up to numberOfNodes influential nodes by iterative voting
// (Zhang et al., Sci. Rep. 6, 27823). Every node starts with voting power 1;
// each round, votes flow along every edge into the source node's score using
// the target's current power, the highest-scoring unelected node is elected
// with that score, loses all voting power, and weakens each node it points
// to by 1/avgDegree (floored at 0). A zero maximum ends the election early.
//
// Parallel edges each count, both when voting and when weakening. Ties go to
// the first maximal node in graph node order; that order is stable within
// one graph but deliberately not guaranteed across rebuilds.
func voteRank(g *graph.Graph, numberOfNodes int) []RankEntry {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return nil
	}
	if numberOfNodes <= 0 || numberOfNodes > n {
		numberOfNodes = n
	}
	// Average out-degree; every edge contributes to exactly one node's
	// out-degree.
	avgDegree := float64(len(g.Edges)) / float64(n)

	score := make(map[string]float64, n)
	power := make(map[string]float64, n)
	for _, id := range nodes {
		power[id] = 1
	}
	elected := make(map[string]bool, n)

	var ranked []RankEntry
	for round := 0; round < numberOfNodes; round++ {
		for _, id := range nodes {
			score[id] = 0
		}
		for _, e := range g.Edges {
			score[e.Source] += power[e.Target]
		}
		for id := range elected {
			score[id] = 0
		}

		best := nodes[0]
		for _, id := range nodes[1:] {
			if score[id] > score[best] {
				best = id
			}
		}
		if score[best] == 0 {
			// Nobody has voting influence left.
			break
		}

		ranked = append(ranked, RankEntry{NodeID: best, Score: score[best]})
		elected[best] = true
		power[best] = 0
		for _, e := range g.Edges {
			if e.Source != best {
				continue
			}
			power[e.Target] -= 1 / avgDegree
			if power[e.Target] < 0 {
				power[e.Target] = 0
			}
		}
	}
	return ranked
}
