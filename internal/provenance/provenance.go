// Package provenance implements the citation/derivation DAG and its
// L-Score (spec.md §3 "Provenance", §9 "Cyclic references in provenance"),
// grounded on the graph-traversal shape in the teacher's Neo4j-backed
// knowledge graph (pkg/repo.Neo4jRepo), adapted here to an in-process DAG
// with an optional Neo4j persistence adapter (neo4jstore.go).
package provenance

import (
	"fmt"
)

// NodeKind distinguishes a source document from a derivation step
// (spec.md §3 "a DAG of sources and derivation steps").
type NodeKind string

const (
	KindSource     NodeKind = "source"
	KindDerivation NodeKind = "derivation"
)

// Node is one vertex of the provenance DAG.
type Node struct {
	ID         string
	Kind       NodeKind
	Relevance  float64 // source relevance in [0,1]; ignored for derivations
	Confidence float64 // derivation step confidence in [0,1]; ignored for sources
	ParentIDs  []string
}

// Graph holds the provenance DAG (spec.md §3 "Provenance").
type Graph struct {
	nodes map[string]*Node
}

// New builds an empty provenance graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n Node) {
	g.nodes[n.ID] = &n
}

// Node returns the node stored under id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// CycleWarning records that traversal encountered a revisit (spec.md §9
// "terminate on revisit with a warning; never follow a cycle").
type CycleWarning struct {
	NodeID string
}

func (w CycleWarning) Error() string {
	return fmt.Sprintf("provenance: cycle detected revisiting node %q", w.NodeID)
}

// Ancestors performs a cycle-safe DFS from id through ParentIDs, returning
// every node reached (id included) and any cycle warnings encountered.
// Traversal maintains a visited set keyed by node id and never re-follows
// an edge into an already-visited node (spec.md §9).
func (g *Graph) Ancestors(id string) ([]*Node, []CycleWarning) {
	visited := make(map[string]struct{})
	var warnings []CycleWarning
	var order []*Node

	var walk func(nodeID string)
	walk = func(nodeID string) {
		if _, seen := visited[nodeID]; seen {
			warnings = append(warnings, CycleWarning{NodeID: nodeID})
			return
		}
		visited[nodeID] = struct{}{}
		n, ok := g.nodes[nodeID]
		if !ok {
			return
		}
		order = append(order, n)
		for _, parentID := range n.ParentIDs {
			walk(parentID)
		}
	}
	walk(id)
	return order, warnings
}

// LScore combines step confidences, source relevances, and depth into a
// single [0,1] provenance-strength score for id (spec.md §3 "L-Score"):
// each ancestor contributes confidence-or-relevance × 1/(1+depth), so a
// long derivation chain through weak sources scores lower than a short
// one through strong sources.
func (g *Graph) LScore(id string) float64 {
	visited := make(map[string]struct{})
	total := 0.0
	count := 0

	var walk func(nodeID string, depth int)
	walk = func(nodeID string, depth int) {
		if _, seen := visited[nodeID]; seen {
			return
		}
		visited[nodeID] = struct{}{}
		n, ok := g.nodes[nodeID]
		if !ok {
			return
		}
		weight := 1.0
		switch n.Kind {
		case KindSource:
			weight = n.Relevance
		case KindDerivation:
			weight = n.Confidence
		}
		total += weight * (1.0 / float64(1+depth))
		count++
		for _, parentID := range n.ParentIDs {
			walk(parentID, depth+1)
		}
	}
	walk(id, 0)

	if count == 0 {
		return 0
	}
	return total / float64(count)
}
