package provenance

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore persists provenance nodes and their parent edges, grounded
// on the session-per-call pattern in pkg/repo.Neo4jRepo — reused directly
// here instead of through the generic Repository interface since edges
// need their own Cypher beyond single-node CRUD.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore wraps a driver for provenance persistence.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

// SaveNode upserts a node and its DERIVES edges (parent -> child),
// matching the MERGE-based idempotent write style used elsewhere in the
// teacher's graph writes.
func (s *Neo4jStore) SaveNode(ctx context.Context, n Node) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MERGE (n:ProvenanceNode {id: $id})
		 SET n.kind = $kind, n.relevance = $relevance, n.confidence = $confidence`,
		map[string]any{
			"id":         n.ID,
			"kind":       string(n.Kind),
			"relevance":  n.Relevance,
			"confidence": n.Confidence,
		})
	if err != nil {
		return fmt.Errorf("provenance: save node: %w", err)
	}

	for _, parentID := range n.ParentIDs {
		_, err := sess.Run(ctx,
			`MATCH (child:ProvenanceNode {id: $childID})
			 MERGE (parent:ProvenanceNode {id: $parentID})
			 MERGE (parent)-[:DERIVES]->(child)`,
			map[string]any{"childID": n.ID, "parentID": parentID})
		if err != nil {
			return fmt.Errorf("provenance: link parent %q: %w", parentID, err)
		}
	}
	return nil
}

// LoadGraph reads every ProvenanceNode and DERIVES edge into an in-memory
// Graph for traversal and L-Score computation.
func (s *Neo4jStore) LoadGraph(ctx context.Context) (*Graph, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	g := New()

	nodeResult, err := sess.Run(ctx,
		`MATCH (n:ProvenanceNode) RETURN n.id, n.kind, n.relevance, n.confidence`, nil)
	if err != nil {
		return nil, fmt.Errorf("provenance: load nodes: %w", err)
	}
	for nodeResult.Next(ctx) {
		rec := nodeResult.Record()
		id, _ := rec.Values[0].(string)
		kind, _ := rec.Values[1].(string)
		relevance, _ := rec.Values[2].(float64)
		confidence, _ := rec.Values[3].(float64)
		g.AddNode(Node{ID: id, Kind: NodeKind(kind), Relevance: relevance, Confidence: confidence})
	}
	if err := nodeResult.Err(); err != nil {
		return nil, fmt.Errorf("provenance: iterate nodes: %w", err)
	}

	edgeResult, err := sess.Run(ctx,
		`MATCH (parent:ProvenanceNode)-[:DERIVES]->(child:ProvenanceNode)
		 RETURN child.id, parent.id`, nil)
	if err != nil {
		return nil, fmt.Errorf("provenance: load edges: %w", err)
	}
	for edgeResult.Next(ctx) {
		rec := edgeResult.Record()
		childID, _ := rec.Values[0].(string)
		parentID, _ := rec.Values[1].(string)
		if n, ok := g.nodes[childID]; ok {
			n.ParentIDs = append(n.ParentIDs, parentID)
		}
	}
	if err := edgeResult.Err(); err != nil {
		return nil, fmt.Errorf("provenance: iterate edges: %w", err)
	}

	return g, nil
}
