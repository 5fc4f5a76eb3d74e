package episode

import (
	"context"
	"time"
)

// ConfidenceLevel classifies how strongly a retrieved episode should be
// trusted for injection (spec.md §4.6 "Injection filter").
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// WarningThreshold and MinOutcomesForWarning gate the negative-example
// warning (spec.md §4.6 "Enhance with outcomes").
const (
	WarningThreshold      = 0.5
	MinOutcomesForWarning = 3
)

// recentWindow is how long after creation an episode counts as "recent"
// for the high-confidence band (spec.md §4.6 "high if... recent").
const recentWindow = 7 * 24 * time.Hour

// defaultSimilarityThreshold and codingSimilarityThreshold implement the
// domain-dependent drop threshold (spec.md §4.6 "Retrieve").
const (
	defaultSimilarityThreshold = 0.7
	codingSimilarityThreshold  = 0.92
)

func similarityThresholdForDomain(domain string) float64 {
	if domain == "coding" {
		return codingSimilarityThreshold
	}
	return defaultSimilarityThreshold
}

// windowSizeByPhase implements spec.md §4.6 "Window sizing".
var windowSizeByPhase = map[string]int{
	"planning": 2,
	"research": 3,
	"writing":  5,
	"qa":       10,
}

const defaultWindowSize = 3

// WindowSize returns how many results a caller-declared phase permits to
// be injected per call.
func WindowSize(phase string) int {
	if n, ok := windowSizeByPhase[phase]; ok {
		return n
	}
	return defaultWindowSize
}

// Result is one retrieved episode enriched with outcome and confidence
// metadata (spec.md §4.6).
type Result struct {
	Episode       *Episode
	Similarity    float64
	Confidence    ConfidenceLevel
	SuccessRate   float64
	HasSuccessRate bool
	OutcomeCount  int
	Warning       string
}

// RetrieveOptions parameterizes Store.Retrieve.
type RetrieveOptions struct {
	K                int
	RerankCandidates int
	// MinConfidence drops any candidate below this level (spec.md §4.6
	// "Injection filter"); zero value means no floor.
	MinConfidence ConfidenceLevel
}

var confidenceRank = map[ConfidenceLevel]int{
	ConfidenceLow:    1,
	ConfidenceMedium: 2,
	ConfidenceHigh:   3,
}

// Retrieve embeds queryText, searches the HNSW index for rerank candidates,
// maps hits back to episodes, drops anything below the domain-dependent
// similarity threshold, enhances survivors with outcome data, assigns a
// confidence level, and applies the caller's minimum-confidence floor
// (spec.md §4.6 "Retrieve(queryText, options)").
func (s *Store) Retrieve(ctx context.Context, queryText string, opts RetrieveOptions) ([]Result, error) {
	k := opts.K
	if k <= 0 {
		k = defaultWindowSize
	}
	topK := opts.RerankCandidates
	if topK <= 0 {
		topK = k * 2
	}

	queryVec, err := s.embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	candidates, err := s.searchVector(queryVec, topK)
	if err != nil {
		return nil, err
	}

	now := s.now()
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		threshold := similarityThresholdForDomain(c.episode.Domain)
		if c.similarity < threshold {
			continue
		}
		r := enhanceWithOutcome(c, now)
		if opts.MinConfidence != "" && confidenceRank[r.Confidence] < confidenceRank[opts.MinConfidence] {
			continue
		}
		results = append(results, r)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// enhanceWithOutcome joins outcome counters onto a raw candidate, applies
// negative-example warning, and classifies its confidence band.
func enhanceWithOutcome(c rawCandidate, now time.Time) Result {
	r := Result{
		Episode:      c.episode,
		Similarity:   c.similarity,
		OutcomeCount: c.episode.OutcomeCount(),
	}
	if rate, ok := c.episode.SuccessRate(); ok {
		r.SuccessRate = rate
		r.HasSuccessRate = true
		if rate < WarningThreshold && r.OutcomeCount >= MinOutcomesForWarning {
			r.Warning = "low historical success rate for this episode"
		}
	}

	recent := now.Sub(c.episode.CreatedAt) <= recentWindow
	switch {
	case c.similarity >= 0.85 && recent:
		r.Confidence = ConfidenceHigh
	case c.similarity >= 0.75:
		r.Confidence = ConfidenceMedium
	default:
		r.Confidence = ConfidenceLow
	}
	return r
}
