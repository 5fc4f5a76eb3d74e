package budget

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string, int](10)
	for i := 0; i < 10; i++ {
		c.Put(string(rune('a'+i)), i)
	}
	// touch "a" so it's not least-recently-used anymore.
	c.Get("a")

	result := c.Evict(0.2)
	require.True(t, result.Success)
	require.Equal(t, 2, result.Evicted)

	_, ok := c.Get("a")
	require.True(t, ok)
}

func TestMonitorCheckOnlyAlertsAtOrAboveWarning(t *testing.T) {
	m := New()
	cache := NewLRUCache[string, int](100)
	for i := 0; i < 80; i++ {
		cache.Put(string(rune(i)), i)
	}
	m.Register(ComponentEpisodeCache, cache, cache)

	alerts := m.Check()
	require.Len(t, alerts, 1)
	require.Equal(t, AlertWarning, alerts[0].Level)
}

func TestMonitorReactEvictsOnWarning(t *testing.T) {
	m := New()
	cache := NewLRUCache[string, int](100)
	for i := 0; i < 80; i++ {
		cache.Put(string(rune(i)), i)
	}
	m.Register(ComponentEpisodeCache, cache, cache)

	results := m.React()
	require.Contains(t, results, ComponentEpisodeCache)
	require.True(t, results[ComponentEpisodeCache].Evicted > 0)
}

func TestTotalOverheadFansOutToAllCaches(t *testing.T) {
	m := New()
	episodes := NewLRUCache[string, int](10)
	embeddings := NewLRUCache[string, int](10)
	trajectories := NewTrajectoryCache(10)
	for i := 0; i < 10; i++ {
		episodes.Put(string(rune('a'+i)), i)
		embeddings.Put(string(rune('a'+i)), i)
		trajectories.Put(string(rune('a' + i)))
	}

	m.Register(ComponentEpisodeCache, episodes, episodes)
	m.Register(ComponentEmbeddingCache, embeddings, embeddings)
	m.Register(ComponentTrajectoryCache, trajectories, trajectories)

	overhead := &fakeUsage{current: 190 * 1024 * 1024, limit: 200 * 1024 * 1024}
	m.Register(ComponentTotalOverhead, overhead, nil)

	results := m.React()
	require.Contains(t, results, ComponentEpisodeCache)
	require.Contains(t, results, ComponentEmbeddingCache)
	require.Contains(t, results, ComponentTrajectoryCache)
}

type fakeUsage struct {
	current, limit int64
}

func (f *fakeUsage) Usage() (int64, int64) { return f.current, f.limit }

func TestTrajectoryCacheFlushesCompletedFirst(t *testing.T) {
	tc := NewTrajectoryCache(10)
	for i := 0; i < 5; i++ {
		tc.Put(string(rune('a' + i)))
	}
	tc.Complete("a")
	tc.Complete("b")

	result := tc.Evict(0.4) // request 2
	require.Equal(t, 2, result.Requested)
	require.Equal(t, 2, result.Evicted)
	require.Equal(t, 3, tc.Len())
}

func TestTokenTrackerAggregatesByFilter(t *testing.T) {
	tracker := NewTokenTracker(100, nil)
	tracker.Record(TokenRecord{SessionID: "s1", InputTokens: 10, OutputTokens: 5, TaskType: "coding"})
	tracker.Record(TokenRecord{SessionID: "s1", InputTokens: 20, OutputTokens: 8, TaskType: "writing"})
	tracker.Record(TokenRecord{SessionID: "s2", InputTokens: 30, OutputTokens: 1, TaskType: "coding"})

	stats := tracker.Query(Filter{SessionID: "s1"})
	require.Equal(t, 2, stats.Requests)
	require.Equal(t, int64(30), stats.InputTokens)
}

func TestTokenTrackerAutoFlushesAtLimit(t *testing.T) {
	flushed := 0
	tracker := NewTokenTracker(2, func(recs []TokenRecord) {
		flushed = len(recs)
	})
	tracker.Record(TokenRecord{SessionID: "s1"})
	require.Equal(t, 0, flushed)
	tracker.Record(TokenRecord{SessionID: "s1"})
	require.Equal(t, 2, flushed)
	require.Equal(t, 0, tracker.BufferSize())
}
