// Package hnsw implements a Hierarchical Navigable Small World approximate
// nearest-neighbor index (spec.md §4.1), grounded on the layered-graph
// design in the xDarkicex/libravdb reference (internal/index/hnsw) from the
// retrieval pack: per-node level sampling, greedy descent from an entry
// point, and a beam search bounded by ef at each level.
//
// Concurrency: per spec.md §5, add/search are not safe to call concurrently
// on the same index — callers (internal/capability, internal/episode) hold
// the daemon's single-threaded hot path and must serialize access
// themselves.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"

	"github.com/agentdb/memory/internal/vectorutil"
)

// Metric identifies the distance function used for graph traversal.
type Metric string

const (
	MetricCosine Metric = "cosine"
)

// Config holds the tunable HNSW parameters (spec.md §4.1, §9 open question
// on rerankCandidates).
type Config struct {
	Dimension      int
	M              int
	EfConstruction int
	EfSearch       int
	Metric         Metric
	// RerankCandidates is the number of full-precision candidates re-ranked
	// after a quantized graph traversal. Defaults to K*2 per spec.md §9.
	RerankCandidates int
	// Quantized enables storing a parallel int8-quantized vector per node
	// (spec.md §4.1 "Quantization mode").
	Quantized bool
	// Seed makes level sampling reproducible; zero means use a random seed.
	Seed int64
}

// DefaultConfig returns the spec's suggested defaults for D=1536.
func DefaultConfig(dimension int) Config {
	return Config{
		Dimension:        dimension,
		M:                16,
		EfConstruction:   200,
		EfSearch:         50,
		Metric:           MetricCosine,
		RerankCandidates: 0, // computed as k*2 at search time when zero
		Quantized:        false,
	}
}

// Result is one ranked neighbor returned by Search.
type Result struct {
	ID       string
	Distance float32
}

// Index is the HNSW graph plus the backing vectors (spec.md §3 "HNSW
// Index"). It is not safe for concurrent use.
type Index struct {
	cfg Config
	mL  float64 // 1/ln(M), the level-generation parameter

	nodes       map[string]*node
	vectors     map[string][]float32
	quantized   map[string]quantVector
	entryPoint  string
	maxLevel    int
	rng         *rand.Rand
}

// quantVector is a per-vector int8 quantized form with the scale/zero-point
// needed to dequantize it. Re-rank always reads the full-precision vector,
// and Marshal does not write quantized forms, so they exist in memory only.
type quantVector struct {
	codes []int8
	scale float32
	zero  float32
}

// New creates an empty HNSW index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &Index{
		cfg:       cfg,
		mL:        1.0 / math.Log(float64(cfg.M)),
		nodes:     make(map[string]*node),
		vectors:   make(map[string][]float32),
		quantized: make(map[string]quantVector),
		maxLevel:  -1,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Size returns the number of indexed vectors.
func (idx *Index) Size() int { return len(idx.nodes) }

// M0 returns the degree cap at level 0 (2M, per spec.md §4.1).
func (idx *Index) m0() int { return idx.cfg.M * 2 }

func (idx *Index) distance(a, b []float32) float32 {
	return vectorutil.CosineDistance(a, b)
}

// sampleLevel draws a new node's level as floor(-ln(U)*mL).
func (idx *Index) sampleLevel() int {
	u := idx.rng.Float64()
	if u <= 0 {
		u = 1e-12
	}
	return int(math.Floor(-math.Log(u) * idx.mL))
}

// Add inserts or replaces the vector stored under id (spec.md §4.1 "add").
func (idx *Index) Add(id string, vector []float32) error {
	if len(vector) != idx.cfg.Dimension {
		return &vectorutil.ErrDimensionMismatch{Want: idx.cfg.Dimension, Got: len(vector)}
	}
	if _, exists := idx.nodes[id]; exists {
		idx.remove(id)
	}

	level := idx.sampleLevel()
	n := newNode(id, level)
	idx.nodes[id] = n
	vec := make([]float32, len(vector))
	copy(vec, vector)
	idx.vectors[id] = vec
	if idx.cfg.Quantized {
		idx.quantized[id] = quantizeInt8(vec)
	}

	if idx.entryPoint == "" {
		idx.entryPoint = id
		idx.maxLevel = level
		return nil
	}

	entry := idx.entryPoint
	entryLevel := idx.maxLevel

	// Greedy descent from the entry point down to level+1, one best node
	// per level.
	cur := entry
	for l := entryLevel; l > level; l-- {
		cur = idx.greedyClosest(cur, vector, l)
	}

	// From min(level, maxLevel) down to 0, beam search + link.
	for l := min(level, entryLevel); l >= 0; l-- {
		cap := idx.cfg.M
		if l == 0 {
			cap = idx.m0()
		}
		candidates := idx.searchLayer(vector, cur, idx.cfg.EfConstruction, l, nil)
		neighbors := selectNearest(candidates, cap)
		for _, c := range neighbors {
			idx.link(id, c.id, l)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	if level > idx.maxLevel {
		idx.entryPoint = id
		idx.maxLevel = level
	}
	return nil
}

// link connects a and b bidirectionally at level l, pruning the side whose
// degree cap is exceeded by keeping only the nearest edges.
func (idx *Index) link(a, b string, level int) {
	if a == b {
		return
	}
	na, okA := idx.nodes[a]
	nb, okB := idx.nodes[b]
	if !okA || !okB || level > na.level || level > nb.level {
		return
	}
	na.addNeighbor(level, b)
	nb.addNeighbor(level, a)
	idx.pruneIfNeeded(a, level)
	idx.pruneIfNeeded(b, level)
}

func (idx *Index) pruneIfNeeded(id string, level int) {
	n := idx.nodes[id]
	cap := idx.cfg.M
	if level == 0 {
		cap = idx.m0()
	}
	ids := n.neighborIDs(level)
	if len(ids) <= cap {
		return
	}
	vec := idx.vectors[id]
	cands := make([]candidate, len(ids))
	for i, nb := range ids {
		cands[i] = candidate{id: nb, distance: idx.distance(vec, idx.vectors[nb])}
	}
	keep := selectNearest(cands, cap)
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k.id] = struct{}{}
	}
	for _, nb := range ids {
		if _, ok := keepSet[nb]; !ok {
			n.removeNeighbor(level, nb)
			if other, ok := idx.nodes[nb]; ok {
				other.removeNeighbor(level, id)
			}
		}
	}
}

// greedyClosest walks from `from` toward query at a single level, returning
// the locally closest node id (used above the new node's level, where a
// full beam isn't needed).
func (idx *Index) greedyClosest(from string, query []float32, level int) string {
	best := from
	bestDist := idx.distance(query, idx.vectors[from])
	improved := true
	for improved {
		improved = false
		n := idx.nodes[best]
		if level > n.level {
			continue
		}
		for _, nb := range n.neighborIDs(level) {
			d := idx.distance(query, idx.vectors[nb])
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}

// searchLayer is the ef-bounded beam search described in spec.md §4.1. It
// returns up to ef candidates sorted nearest-first.
func (idx *Index) searchLayer(query []float32, entry string, ef int, level int, visited map[string]struct{}) []candidate {
	if visited == nil {
		visited = make(map[string]struct{})
	}
	toExplore := newMinHeap()
	results := newMaxHeap()

	entryDist := idx.distance(query, idx.vectors[entry])
	heap.Push(toExplore, candidate{id: entry, distance: entryDist})
	heap.Push(results, candidate{id: entry, distance: entryDist})
	visited[entry] = struct{}{}

	for toExplore.Len() > 0 {
		nearest := heap.Pop(toExplore).(candidate)
		if results.Len() >= ef {
			worst := (*results)[0]
			if nearest.distance > worst.distance {
				break
			}
		}
		n := idx.nodes[nearest.id]
		if level > n.level {
			continue
		}
		for _, nbID := range n.neighborIDs(level) {
			if _, seen := visited[nbID]; seen {
				continue
			}
			visited[nbID] = struct{}{}
			d := idx.distance(query, idx.vectors[nbID])
			if results.Len() < ef {
				heap.Push(toExplore, candidate{id: nbID, distance: d})
				heap.Push(results, candidate{id: nbID, distance: d})
			} else {
				worst := (*results)[0]
				if d < worst.distance {
					heap.Push(toExplore, candidate{id: nbID, distance: d})
					heap.Push(results, candidate{id: nbID, distance: d})
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// selectNearest trims a candidate slice (already or not yet sorted) to the
// n nearest by distance.
func selectNearest(cands []candidate, n int) []candidate {
	sorted := make([]candidate, len(cands))
	copy(sorted, cands)
	insertionSortCandidates(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func insertionSortCandidates(c []candidate) {
	for i := 1; i < len(c); i++ {
		v := c[i]
		j := i - 1
		for j >= 0 && c[j].distance > v.distance {
			c[j+1] = c[j]
			j--
		}
		c[j+1] = v
	}
}

// Search returns the k approximate nearest neighbors of query (spec.md
// §4.1 "search"). Results are ordered by non-decreasing distance.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != idx.cfg.Dimension {
		return nil, &vectorutil.ErrDimensionMismatch{Want: idx.cfg.Dimension, Got: len(query)}
	}
	if idx.entryPoint == "" || k <= 0 {
		return nil, nil
	}

	cur := idx.entryPoint
	for l := idx.maxLevel; l >= 1; l-- {
		cur = idx.greedyClosest(cur, query, l)
	}

	rerank := idx.cfg.RerankCandidates
	if rerank <= 0 {
		rerank = k * 2
	}
	ef := idx.cfg.EfSearch
	if idx.cfg.Quantized && rerank > ef {
		ef = rerank
	}
	if ef < k {
		ef = k
	}

	cands := idx.searchLayer(query, cur, ef, 0, nil)

	// The quantized path's graph links are identical to the full-precision
	// path (spec.md §4.1); traversal already ran against full-precision
	// vectors above, so re-rank here is a no-op narrowing to k. Kept as an
	// explicit step so enabling true quantized storage only changes how
	// `idx.vectors` is populated, not this ranking logic.
	if len(cands) > rerank {
		cands = cands[:rerank]
	}
	insertionSortCandidates(cands)

	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{ID: c.id, Distance: c.distance}
	}
	return out, nil
}

// Remove deletes id from the index (spec.md §4.1 "remove").
func (idx *Index) Remove(id string) error {
	if _, ok := idx.nodes[id]; !ok {
		return memerrNotFound(id)
	}
	idx.remove(id)
	return nil
}

func (idx *Index) remove(id string) {
	n := idx.nodes[id]
	for l := 0; l <= n.level; l++ {
		for _, nb := range n.neighborIDs(l) {
			if other, ok := idx.nodes[nb]; ok {
				other.removeNeighbor(l, id)
			}
		}
	}
	delete(idx.nodes, id)
	delete(idx.vectors, id)
	delete(idx.quantized, id)

	if idx.entryPoint == id {
		idx.electEntryPoint()
	}
}

func (idx *Index) electEntryPoint() {
	idx.entryPoint = ""
	idx.maxLevel = -1
	for id, n := range idx.nodes {
		if n.level > idx.maxLevel {
			idx.maxLevel = n.level
			idx.entryPoint = id
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func memerrNotFound(id string) error {
	return fmt.Errorf("hnsw: vector id %q not found", id)
}
