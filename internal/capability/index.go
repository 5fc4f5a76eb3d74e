package capability

import (
	"sort"
	"sync"
	"time"

	"github.com/agentdb/memory/internal/hnsw"
	"github.com/agentdb/memory/internal/memerr"
	"github.com/agentdb/memory/internal/vectorutil"
)

// FreshnessThreshold is the max age an in-memory index may have before a
// lookup forces a rebuild check (spec.md §4.4 "index freshness").
const FreshnessThreshold = 10 * time.Minute

// Index is the in-memory capability lookup: an HNSW graph over agent
// embeddings plus the entries themselves for domain/keyword filtering
// (spec.md §4.4 "Capability Index"). It is grounded on the same
// greedy-descent-then-beam-search shape as internal/hnsw, reused directly
// rather than re-implemented, since capability lookups are a nearest-
// neighbor search like episode retrieval.
type Index struct {
	mu        sync.RWMutex
	dimension int
	graph     *hnsw.Index
	entries   map[string]Entry
	builtAt   time.Time
}

// NewIndex builds an empty capability index for the given embedding
// dimension.
func NewIndex(dimension int) (*Index, error) {
	graph, err := hnsw.New(hnsw.DefaultConfig(dimension))
	if err != nil {
		return nil, err
	}
	return &Index{
		dimension: dimension,
		graph:     graph,
		entries:   make(map[string]Entry),
	}, nil
}

// Rebuild replaces the index contents wholesale from a freshly loaded (or
// freshly computed) entry set — used both after a cache load and after a
// cache miss forces re-embedding (spec.md §4.4 "rebuild").
func (idx *Index) Rebuild(entries map[string]Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	graph, err := hnsw.New(hnsw.DefaultConfig(idx.dimension))
	if err != nil {
		return err
	}
	fresh := make(map[string]Entry, len(entries))
	for key, e := range entries {
		if len(e.Embedding) != idx.dimension {
			return memerr.New(memerr.Validation, "capability: entry "+key+" has wrong embedding dimension")
		}
		if err := graph.Add(key, e.Embedding); err != nil {
			return err
		}
		fresh[key] = e
	}
	idx.graph = graph
	idx.entries = fresh
	idx.builtAt = nowTime()
	return nil
}

// Put upserts a single entry without a full rebuild, used when an agent's
// capability card is re-embedded individually.
func (idx *Index) Put(key string, e Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(e.Embedding) != idx.dimension {
		return memerr.New(memerr.Validation, "capability: entry has wrong embedding dimension")
	}
	if err := idx.graph.Add(key, e.Embedding); err != nil {
		return err
	}
	idx.entries[key] = e
	return nil
}

// Stale reports whether the index was built longer ago than
// FreshnessThreshold, signaling callers to re-check the on-disk cache
// (spec.md §4.4 "index freshness" / INDEX_SYNC).
func (idx *Index) Stale() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.builtAt.IsZero() {
		return true
	}
	return nowTime().Sub(idx.builtAt) > FreshnessThreshold
}

// Size returns the number of indexed capability entries.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search returns the k nearest capability entries to queryVector, ranked by
// cosine similarity (spec.md §4.4 "search").
func (idx *Index) Search(queryVector []float32, k int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(queryVector) != idx.dimension {
		return nil, &vectorutil.ErrDimensionMismatch{Want: idx.dimension, Got: len(queryVector)}
	}
	results, err := idx.graph.Search(queryVector, k)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		e, ok := idx.entries[r.ID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{
			Entry:      e,
			Similarity: 1 - r.Distance,
		})
	}
	return out, nil
}

// SearchByDomain returns the k nearest entries to queryVector restricted to
// those tagged with domain, marking DomainOverlap true on every result
// (spec.md §4.4 "searchByDomain"). It over-fetches from the graph to
// compensate for post-filtering, then trims to k.
func (idx *Index) SearchByDomain(queryVector []float32, domain Domain, k int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(queryVector) != idx.dimension {
		return nil, &vectorutil.ErrDimensionMismatch{Want: idx.dimension, Got: len(queryVector)}
	}

	overfetch := k * 4
	if overfetch < k+8 {
		overfetch = k + 8
	}
	if overfetch > len(idx.entries) {
		overfetch = len(idx.entries)
	}
	results, err := idx.graph.Search(queryVector, overfetch)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, k)
	for _, r := range results {
		e, ok := idx.entries[r.ID]
		if !ok || !e.HasDomain(domain) {
			continue
		}
		out = append(out, SearchResult{
			Entry:         e,
			Similarity:    1 - r.Distance,
			DomainOverlap: true,
		})
		if len(out) == k {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// Entry returns the capability entry stored under key, if present.
func (idx *Index) Entry(key string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	return e, ok
}

// Entries returns a snapshot of every indexed capability entry, for
// domain/keyword listing paths that have no query vector to search with
// (spec.md §4.7 "memory.getByDomain"/"memory.getByTags").
func (idx *Index) Entries() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	return out
}

// Delete removes the entry stored under key from both the graph and the
// entry map (spec.md §4.7 "memory.delete").
func (idx *Index) Delete(key string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[key]; !ok {
		return memerr.New(memerr.NotFound, "capability: unknown agentKey "+key)
	}
	delete(idx.entries, key)
	return idx.graph.Remove(key)
}

var nowTime = time.Now
