package provenance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAncestorsFollowsParentChain(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "source-a", Kind: KindSource, Relevance: 0.9})
	g.AddNode(Node{ID: "step-b", Kind: KindDerivation, Confidence: 0.8, ParentIDs: []string{"source-a"}})
	g.AddNode(Node{ID: "step-c", Kind: KindDerivation, Confidence: 0.7, ParentIDs: []string{"step-b"}})

	nodes, warnings := g.Ancestors("step-c")
	require.Empty(t, warnings)
	require.Len(t, nodes, 3)
}

func TestAncestorsDetectsCycleAndStops(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", Kind: KindDerivation, Confidence: 0.5, ParentIDs: []string{"b"}})
	g.AddNode(Node{ID: "b", Kind: KindDerivation, Confidence: 0.5, ParentIDs: []string{"a"}})

	nodes, warnings := g.Ancestors("a")
	require.NotEmpty(t, warnings)
	require.Len(t, nodes, 2)
}

func TestLScoreWeightsSourceRelevanceAndStepConfidence(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "strong-source", Kind: KindSource, Relevance: 1.0})
	g.AddNode(Node{ID: "strong-step", Kind: KindDerivation, Confidence: 1.0, ParentIDs: []string{"strong-source"}})

	g.AddNode(Node{ID: "weak-source", Kind: KindSource, Relevance: 0.1})
	g.AddNode(Node{ID: "weak-step", Kind: KindDerivation, Confidence: 0.1, ParentIDs: []string{"weak-source"}})

	require.Greater(t, g.LScore("strong-step"), g.LScore("weak-step"))
}

func TestLScoreUnknownNodeIsZero(t *testing.T) {
	g := New()
	require.Equal(t, 0.0, g.LScore("missing"))
}
