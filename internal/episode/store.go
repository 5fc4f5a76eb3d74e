package episode

import (
	"context"
	"sync"
	"time"

	"github.com/agentdb/memory/internal/compression"
	"github.com/agentdb/memory/internal/hnsw"
	"github.com/agentdb/memory/internal/memerr"
	"github.com/google/uuid"
)

// EmbedFunc turns task text into a D-dimensional embedding. The daemon
// wires this to internal/embedder.Client.Embed.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Store holds episodes keyed by episode id, with their vectors indexed by
// an HNSW graph for search and tracked by a compression manager for tiered
// storage (spec.md §4.6 "Each episode carries a vector id; the vector
// lives in the HNSW + compression manager").
type Store struct {
	mu         sync.RWMutex
	index      *hnsw.Index
	compressor *compression.Manager
	episodes   map[string]*Episode
	embed      EmbedFunc
	now        func() time.Time
}

// Options configures a new Store.
type Options struct {
	Dimension  int
	Embed      EmbedFunc
	Compressor *compression.Manager
	Now        func() time.Time
}

// New builds an empty episode store.
func New(opts Options) (*Store, error) {
	idx, err := hnsw.New(hnsw.DefaultConfig(opts.Dimension))
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	compressor := opts.Compressor
	if compressor == nil {
		compressor = compression.New(compression.ManagerOptions{Dimension: opts.Dimension})
	}
	return &Store{
		index:      idx,
		compressor: compressor,
		episodes:   make(map[string]*Episode),
		embed:      opts.Embed,
		now:        now,
	}, nil
}

// Record embeds taskText, stores the vector in both the search index and
// the compression manager, and creates a new Episode (spec.md §3
// "Episode" lifecycle "created on store").
func (s *Store) Record(ctx context.Context, taskText, answerText, agentType, domain, reasoningTrace string) (*Episode, error) {
	vec, err := s.embed(ctx, taskText)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Add(id, vec); err != nil {
		return nil, err
	}
	if err := s.compressor.Store(id, vec); err != nil {
		return nil, err
	}

	ep := &Episode{
		EpisodeID:      id,
		TaskText:       taskText,
		AnswerText:     answerText,
		AgentType:      agentType,
		ReasoningTrace: reasoningTrace,
		Domain:         domain,
		CreatedAt:      s.now(),
	}
	s.episodes[id] = ep
	return ep, nil
}

// RecordOutcome appends a success/failure outcome to an existing episode
// (spec.md §3 "mutated only by access... or deleted").
func (s *Store) RecordOutcome(episodeID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if !ok {
		return memerr.New(memerr.NotFound, "episode: unknown id "+episodeID)
	}
	if success {
		ep.Successes++
	} else {
		ep.Failures++
	}
	return nil
}

// Get returns the episode stored under id.
func (s *Store) Get(episodeID string) (*Episode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.episodes[episodeID]
	return ep, ok
}

// Delete removes an episode and its vector from the search index. The
// compression manager's copy of the vector is not removed.
func (s *Store) Delete(episodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodes[episodeID]; !ok {
		return memerr.New(memerr.NotFound, "episode: unknown id "+episodeID)
	}
	delete(s.episodes, episodeID)
	return s.index.Remove(episodeID)
}

// Size returns the number of stored episodes.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

// rawCandidate is an internal search hit before filtering/enhancement.
type rawCandidate struct {
	episode    *Episode
	similarity float64
}

// searchVector runs the HNSW search under the store's lock and resolves
// hits back to episodes, skipping any id whose episode has since been
// deleted.
func (s *Store) searchVector(query []float32, topK int) ([]rawCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results, err := s.index.Search(query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]rawCandidate, 0, len(results))
	for _, r := range results {
		ep, ok := s.episodes[r.ID]
		if !ok {
			continue
		}
		out = append(out, rawCandidate{episode: ep, similarity: 1 - float64(r.Distance)})
	}
	return out, nil
}
