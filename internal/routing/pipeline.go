package routing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agentdb/memory/internal/capability"
	"github.com/agentdb/memory/internal/memerr"
)

// stageMarkers is the closed splitting-marker set (spec.md §4.5 "Pipeline
// generator"), ordered longest-match-first so multi-word markers win over
// a word they contain (e.g. "after that" over "after").
var stageMarkers = []string{
	"once complete",
	"following that",
	"after that",
	"and then",
	"subsequently",
	"afterwards",
	"finally",
	"next",
	"then",
	"after",
}

// actionVerbs is the closed set a stage's primary verb must come from
// (spec.md §4.5 "extract a primary verb from a closed action-verb set").
var actionVerbs = []string{
	"research", "draft", "write", "review", "analyze", "summarize",
	"plan", "implement", "test", "deploy", "refactor", "debug",
	"design", "document", "validate", "compile",
}

// DefaultMaxStages bounds pipeline length (spec.md §4.5).
const DefaultMaxStages = 10

// DefaultStageDuration is the per-stage time estimate used to compute the
// pipeline's total duration; the source spec leaves the estimator
// unspecified beyond "sum of per-stage estimates", so a flat duration is
// used until a real cost model is wired in.
const DefaultStageDuration = 30 * time.Second

// Stage is one step of a generated pipeline (spec.md §3 "Pipeline
// Definition").
type Stage struct {
	Index       int
	Name        string
	Verb        string
	Text        string
	AgentKey    string
	Route       *RouteResult
	DependsOn   []int
	Duration    time.Duration
	OutputDomain string
}

// Pipeline is an ordered sequence of stages (spec.md §3 "Pipeline
// Definition").
type Pipeline struct {
	ID               string
	Stages           []Stage
	OverallConfidence float64
	TotalDuration    time.Duration
}

var markerSplit *regexp.Regexp

func init() {
	escaped := make([]string, len(stageMarkers))
	for i, m := range stageMarkers {
		escaped[i] = regexp.QuoteMeta(m)
	}
	// word-bounded on both sides so "then" doesn't match inside "Athena".
	markerSplit = regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`)
}

// splitStages breaks task on the closed marker set, longest-match-first
// via the alternation order baked into markerSplit.
func splitStages(task string) []string {
	parts := markerSplit.Split(task, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, ",")
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractVerb returns the first closed-set action verb found in segment,
// lower-cased, or "" if none match.
func extractVerb(segment string) string {
	lower := strings.ToLower(segment)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	verbSet := make(map[string]struct{}, len(actionVerbs))
	for _, v := range actionVerbs {
		verbSet[v] = struct{}{}
	}
	for _, w := range words {
		if _, ok := verbSet[w]; ok {
			return w
		}
	}
	if len(words) > 0 {
		return words[0]
	}
	return ""
}

// GeneratePipeline splits task on the closed marker set, routes each
// segment independently, and assembles a linear-dependency pipeline whose
// overall confidence is the minimum stage confidence (spec.md §4.5
// "Pipeline generator").
func (e *Engine) GeneratePipeline(ctx context.Context, pipelineID, task string, maxStages int) (*Pipeline, error) {
	if maxStages <= 0 {
		maxStages = DefaultMaxStages
	}
	segments := splitStages(task)
	if len(segments) < 2 {
		return nil, memerr.New(memerr.Validation, "pipeline: fewer than 2 stages")
	}
	if len(segments) > maxStages {
		return nil, memerr.New(memerr.Validation, fmt.Sprintf("pipeline: %d stages exceeds max %d", len(segments), maxStages))
	}

	stages := make([]Stage, len(segments))
	minConfidence := 1.0
	var total time.Duration

	for i, seg := range segments {
		route, err := e.Select(ctx, seg, capability.Domain(""))
		if err != nil {
			return nil, memerr.Wrap(memerr.NoAgent, fmt.Sprintf("pipeline: stage %d failed", i), err)
		}
		verb := extractVerb(seg)
		deps := []int{}
		if i > 0 {
			deps = []int{i - 1}
		}
		stages[i] = Stage{
			Index:        i,
			Name:         verb,
			Verb:         verb,
			Text:         seg,
			AgentKey:     route.Candidates[0].AgentKey,
			Route:        route,
			DependsOn:    deps,
			Duration:     DefaultStageDuration,
			OutputDomain: fmt.Sprintf("pipeline/%s/stage_%d", pipelineID, i),
		}
		if route.Confidence < minConfidence {
			minConfidence = route.Confidence
		}
		total += DefaultStageDuration
	}

	return &Pipeline{
		ID:                pipelineID,
		Stages:            stages,
		OverallConfidence: minConfidence,
		TotalDuration:     total,
	}, nil
}
