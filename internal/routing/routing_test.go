package routing

import (
	"context"
	"testing"

	"github.com/agentdb/memory/internal/capability"
	"github.com/stretchr/testify/require"
)

func unitVec(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func buildIndex(t *testing.T) *capability.Index {
	t.Helper()
	idx, err := capability.NewIndex(4)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(map[string]capability.Entry{
		"coder": {
			AgentKey:    "coder",
			Domains:     []capability.Domain{capability.DomainCoding},
			Embedding:   unitVec(4, 0),
			SuccessRate: 0.9,
		},
		"writer": {
			AgentKey:    "writer",
			Domains:     []capability.Domain{capability.DomainWriting},
			Embedding:   unitVec(4, 1),
			SuccessRate: 0.6,
		},
	}))
	return idx
}

func fakeEmbed(vectors map[string][]float32) EmbedFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return vectors[text], nil
	}
}

func TestSelectReturnsAutoLevelForExactMatch(t *testing.T) {
	idx := buildIndex(t)
	e := New(Options{
		CapabilityIndex: idx,
		Embed:           fakeEmbed(map[string][]float32{"fix this bug": unitVec(4, 0)}),
	})
	result, err := e.Select(context.Background(), "fix this bug", capability.DomainCoding)
	require.NoError(t, err)
	require.Equal(t, "coder", result.Candidates[0].AgentKey)
	require.Equal(t, LevelAuto, result.Level)
}

func TestLevelForConfidenceBoundaries(t *testing.T) {
	require.Equal(t, LevelAuto, LevelForConfidence(0.90))
	require.Equal(t, LevelShow, LevelForConfidence(0.70))
	require.Equal(t, LevelConfirm, LevelForConfidence(0.50))
	require.Equal(t, LevelSelect, LevelForConfidence(0.49))
}

func TestSelectNoAgentOnEmptyIndex(t *testing.T) {
	idx, err := capability.NewIndex(4)
	require.NoError(t, err)
	e := New(Options{
		CapabilityIndex: idx,
		Embed:           fakeEmbed(map[string][]float32{"task": unitVec(4, 0)}),
	})
	_, err = e.Select(context.Background(), "task", "")
	require.Error(t, err)
}

func TestGeneratePipelineSplitsOnMarkers(t *testing.T) {
	idx := buildIndex(t)
	e := New(Options{
		CapabilityIndex: idx,
		Embed: fakeEmbed(map[string][]float32{
			"research current lit":  unitVec(4, 1),
			"draft an outline":      unitVec(4, 1),
			"write chapter 1":       unitVec(4, 1),
			"review":                unitVec(4, 1),
		}),
	})
	p, err := e.GeneratePipeline(context.Background(), "pipe-1",
		"research current lit then draft an outline then write chapter 1 then review", 0)
	require.NoError(t, err)
	require.Len(t, p.Stages, 4)
	require.Equal(t, "research", p.Stages[0].Name)
	require.Equal(t, "draft", p.Stages[1].Name)
	require.Equal(t, "write", p.Stages[2].Name)
	require.Equal(t, "review", p.Stages[3].Name)
	require.Equal(t, []int{}, p.Stages[0].DependsOn)
	require.Equal(t, []int{0}, p.Stages[1].DependsOn)
	require.Equal(t, []int{1}, p.Stages[2].DependsOn)
	require.Equal(t, []int{2}, p.Stages[3].DependsOn)
}

func TestGeneratePipelineRejectsSingleStage(t *testing.T) {
	idx := buildIndex(t)
	e := New(Options{
		CapabilityIndex: idx,
		Embed:           fakeEmbed(map[string][]float32{"just write this": unitVec(4, 1)}),
	})
	_, err := e.GeneratePipeline(context.Background(), "pipe-2", "just write this", 0)
	require.Error(t, err)
}

func TestGeneratePipelineOverallConfidenceIsMinimum(t *testing.T) {
	idx := buildIndex(t)
	e := New(Options{
		CapabilityIndex: idx,
		Embed: fakeEmbed(map[string][]float32{
			"write summary": unitVec(4, 1),
			"review it":     unitVec(4, 1),
		}),
	})
	p, err := e.GeneratePipeline(context.Background(), "pipe-3", "write summary then review it", 0)
	require.NoError(t, err)

	min := p.Stages[0].Route.Confidence
	for _, s := range p.Stages {
		if s.Route.Confidence < min {
			min = s.Route.Confidence
		}
	}
	require.Equal(t, min, p.OverallConfidence)
}
