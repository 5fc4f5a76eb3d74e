package episode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unitVec(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func fakeEmbedder(vectors map[string][]float32) EmbedFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return vectors[text], nil
	}
}

func TestRecordAndRetrieveExactMatch(t *testing.T) {
	s, err := New(Options{
		Dimension: 4,
		Embed: fakeEmbedder(map[string][]float32{
			"how do I write a test": unitVec(4, 0),
		}),
	})
	require.NoError(t, err)

	ep, err := s.Record(context.Background(), "how do I write a test", "use testify", "coder", "general", "")
	require.NoError(t, err)
	require.NotEmpty(t, ep.EpisodeID)

	results, err := s.Retrieve(context.Background(), "how do I write a test", RetrieveOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ep.EpisodeID, results[0].Episode.EpisodeID)
	require.Equal(t, ConfidenceHigh, results[0].Confidence)
}

func TestRetrieveDropsBelowDomainThreshold(t *testing.T) {
	s, err := New(Options{
		Dimension: 4,
		Embed: fakeEmbedder(map[string][]float32{
			"coding task":  unitVec(4, 0),
			"query vector": unitVec(4, 1),
		}),
	})
	require.NoError(t, err)
	_, err = s.Record(context.Background(), "coding task", "answer", "coder", "coding", "")
	require.NoError(t, err)

	results, err := s.Retrieve(context.Background(), "query vector", RetrieveOptions{K: 5})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRecordOutcomeAttachesWarningBelowThreshold(t *testing.T) {
	s, err := New(Options{
		Dimension: 4,
		Embed: fakeEmbedder(map[string][]float32{
			"task": unitVec(4, 0),
		}),
	})
	require.NoError(t, err)
	ep, err := s.Record(context.Background(), "task", "answer", "coder", "general", "")
	require.NoError(t, err)

	require.NoError(t, s.RecordOutcome(ep.EpisodeID, false))
	require.NoError(t, s.RecordOutcome(ep.EpisodeID, false))
	require.NoError(t, s.RecordOutcome(ep.EpisodeID, true))

	results, err := s.Retrieve(context.Background(), "task", RetrieveOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].HasSuccessRate)
	require.NotEmpty(t, results[0].Warning)
}

func TestWindowSizeByPhase(t *testing.T) {
	require.Equal(t, 2, WindowSize("planning"))
	require.Equal(t, 3, WindowSize("research"))
	require.Equal(t, 5, WindowSize("writing"))
	require.Equal(t, 10, WindowSize("qa"))
	require.Equal(t, 3, WindowSize("unknown-phase"))
}

func TestDeleteRemovesEpisode(t *testing.T) {
	s, err := New(Options{
		Dimension: 4,
		Embed: fakeEmbedder(map[string][]float32{
			"task": unitVec(4, 0),
		}),
	})
	require.NoError(t, err)
	ep, err := s.Record(context.Background(), "task", "answer", "coder", "general", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ep.EpisodeID))
	_, ok := s.Get(ep.EpisodeID)
	require.False(t, ok)
}

func TestSuccessRateUndefinedBelowMinimumOutcomes(t *testing.T) {
	ep := &Episode{Successes: 1, CreatedAt: time.Now()}
	_, ok := ep.SuccessRate()
	require.False(t, ok)
}
