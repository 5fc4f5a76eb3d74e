// Package routing implements graduated-confidence agent selection and
// multi-step pipeline generation (spec.md §4.5), grounded on
// internal/capability's search for candidate lookup and reusing the same
// embed-then-search shape as internal/episode.
package routing

import (
	"context"
	"math"
	"sort"

	"github.com/agentdb/memory/internal/capability"
	"github.com/agentdb/memory/internal/memerr"
)

// EmbedFunc turns task text into a D-dimensional embedding.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Level is a graduated-confirmation bucket (spec.md §4.5 table).
type Level string

const (
	LevelAuto    Level = "auto"
	LevelShow    Level = "show"
	LevelConfirm Level = "confirm"
	LevelSelect  Level = "select"
)

// Confidence-band boundaries are left-closed/right-open as tabulated in
// spec.md §4.5 and clarified by its open questions.
const (
	AutoThreshold    = 0.9
	ShowThreshold    = 0.7
	ConfirmThreshold = 0.5
)

// LevelForConfidence maps a confidence score to its confirmation level.
func LevelForConfidence(confidence float64) Level {
	switch {
	case confidence >= AutoThreshold:
		return LevelAuto
	case confidence >= ShowThreshold:
		return LevelShow
	case confidence >= ConfirmThreshold:
		return LevelConfirm
	default:
		return LevelSelect
	}
}

// Weights configures the candidate scoring formula (spec.md §4.5 "Score").
type Weights struct {
	Vec     float64
	Domain  float64
	History float64
}

// DefaultWeights sums to 1.0, weighting vector similarity highest.
var DefaultWeights = Weights{Vec: 0.6, Domain: 0.25, History: 0.15}

// Engine selects agents for a task string against the capability index.
type Engine struct {
	capIndex *capability.Index
	embed    EmbedFunc
	weights  Weights
	// TopK bounds how many capability candidates are scored per route.
	TopK int
	// MinScore is the floor below which no candidate counts as reachable,
	// surfacing NO_AGENT (spec.md §4.5 "Failure semantics").
	MinScore float64
}

// Options configures a new Engine.
type Options struct {
	CapabilityIndex *capability.Index
	Embed           EmbedFunc
	Weights         Weights
	TopK            int
	MinScore        float64
}

// New builds a routing Engine.
func New(opts Options) *Engine {
	weights := opts.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	return &Engine{
		capIndex: opts.CapabilityIndex,
		embed:    opts.Embed,
		weights:  weights,
		TopK:     topK,
		MinScore: opts.MinScore,
	}
}

// ScoredCandidate is one agent choice with its raw score and softmax
// probability (spec.md §4.5 "Score"/"softmax").
type ScoredCandidate struct {
	AgentKey    string
	Score       float64
	Probability float64
}

// RouteResult is the outcome of Select (spec.md §4.5 "Routing").
type RouteResult struct {
	Candidates  []ScoredCandidate
	Confidence  float64
	Uncertainty float64
	Level       Level
}

// Select embeds task, searches the capability index, scores and ranks
// candidates, and assigns a graduated confirmation level (spec.md §4.5
// "Routing" steps 1-5).
func (e *Engine) Select(ctx context.Context, task string, domain capability.Domain) (*RouteResult, error) {
	taskVec, err := e.embed(ctx, task)
	if err != nil {
		return nil, err
	}

	hits, err := e.capIndex.Search(taskVec, e.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, memerr.New(memerr.NoAgent, "routing: no capability candidates")
	}

	scored := make([]ScoredCandidate, 0, len(hits))
	for _, h := range hits {
		domainOverlap := 0.0
		if domain != "" && h.Entry.HasDomain(domain) {
			domainOverlap = 1.0
		}
		normalizedSuccess := h.Entry.SuccessRate
		if normalizedSuccess > 1 {
			normalizedSuccess = 1
		}
		score := e.weights.Vec*float64(h.Similarity) +
			e.weights.Domain*domainOverlap +
			e.weights.History*normalizedSuccess
		scored = append(scored, ScoredCandidate{AgentKey: h.Entry.AgentKey, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if scored[0].Score < e.MinScore {
		return nil, memerr.New(memerr.NoAgent, "routing: no candidate over threshold")
	}

	softmax(scored)
	confidence := scored[0].Probability
	uncertainty := normalizedEntropy(scored)

	return &RouteResult{
		Candidates:  scored,
		Confidence:  confidence,
		Uncertainty: uncertainty,
		Level:       LevelForConfidence(confidence),
	}, nil
}

// softmax writes normalized probabilities in place over candidate scores.
func softmax(candidates []ScoredCandidate) {
	if len(candidates) == 0 {
		return
	}
	max := candidates[0].Score
	for _, c := range candidates {
		if c.Score > max {
			max = c.Score
		}
	}
	sum := 0.0
	exps := make([]float64, len(candidates))
	for i, c := range candidates {
		exps[i] = math.Exp(c.Score - max)
		sum += exps[i]
	}
	for i := range candidates {
		candidates[i].Probability = exps[i] / sum
	}
}

// normalizedEntropy returns Shannon entropy of the probability
// distribution divided by its maximum (log n), so it lands in [0,1].
func normalizedEntropy(candidates []ScoredCandidate) float64 {
	n := len(candidates)
	if n <= 1 {
		return 0
	}
	h := 0.0
	for _, c := range candidates {
		if c.Probability <= 0 {
			continue
		}
		h -= c.Probability * math.Log(c.Probability)
	}
	return h / math.Log(float64(n))
}
