package hooks

import (
	"sync"

	"github.com/agentdb/memory/internal/budget"
)

// FEEDBACK and PATTERN thresholds gate the boolean flags exposed in a
// post-hook result's metadata (spec.md §4.9 "Post-hook path").
const (
	FeedbackThreshold = 0.5
	PatternThreshold  = 0.7
)

// QualityAssessor scores a trajectory's captured output; the executor
// compares its result against FeedbackThreshold/PatternThreshold.
type QualityAssessor func(trajectoryID string, output any, metadata map[string]any) (float64, error)

// HookOutcome records what happened to one hook during a chain run,
// isolating per-hook failures (spec.md §4.9 "Errors in one hook are
// isolated and recorded but do not prevent later hooks from running").
type HookOutcome struct {
	HookID  string
	Err     error
	Stopped bool
}

// ChainResult is the outcome of running a full pre- or post-hook chain.
type ChainResult struct {
	Outcomes []HookOutcome
	Stopped  bool
	StopReason string
}

// Executor runs hook chains against a Registry, tracking per-trajectory
// captured output for the post-hook quality-assessment path.
type Executor struct {
	registry     *Registry
	assessor     QualityAssessor
	trajectories *budget.TrajectoryCache

	mu       sync.Mutex
	captured map[string]any // trajectoryID -> captured output
}

// NewExecutor builds an Executor bound to registry, using assessor (which
// may be nil — quality assessment is then skipped). trajectories tracks
// in-flight/completed trajectory ids for budget-monitor eviction (spec.md
// §4.10 "trajectory cache first flushes completed trajectories"); pass nil
// to disable that bookkeeping.
func NewExecutor(registry *Registry, assessor QualityAssessor, trajectories *budget.TrajectoryCache) *Executor {
	return &Executor{registry: registry, assessor: assessor, trajectories: trajectories, captured: make(map[string]any)}
}

// Trajectories exposes the trajectory cache so callers can register it with
// a budget.Monitor (budget.ComponentTrajectoryCache).
func (e *Executor) Trajectories() *budget.TrajectoryCache {
	return e.trajectories
}

// RunPre executes the pre-tool-use chain for toolName. Each hook may
// return ModifiedInput, which threads into subsequent hooks and becomes
// the final input applied to the tool invocation (spec.md §4.9 "Pre-hooks
// may return modifiedInput that threads through subsequent hooks").
func (e *Executor) RunPre(toolName string, input map[string]any) (map[string]any, ChainResult) {
	chain := e.registry.orderedHooks(toolName, StagePre)
	result := ChainResult{}
	current := input

	for _, h := range chain {
		outcome := HookOutcome{HookID: h.ID}
		pr, err := h.Pre(PreContext{ToolName: toolName, Input: current})
		if err != nil {
			outcome.Err = err
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		if pr.ModifiedInput != nil {
			current = pr.ModifiedInput
		}
		if !pr.Continue {
			outcome.Stopped = true
			result.Outcomes = append(result.Outcomes, outcome)
			result.Stopped = true
			result.StopReason = pr.StopReason
			break
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return current, result
}

// PostHookResult is the outcome of RunPost, including quality-assessment
// metadata when a trajectory and assessor are both present.
type PostHookResult struct {
	Chain              ChainResult
	QualityScore        float64
	HasQualityScore     bool
	FeedbackEligible    bool
	PatternEligible     bool
}

// RunPost executes the post-tool-use chain, capturing output under
// trajectoryID (if non-empty) and invoking quality assessment on the
// captured output (spec.md §4.9 "Post-hook path"). On execution failure
// of the chain itself, quality assessment is skipped.
func (e *Executor) RunPost(toolName, trajectoryID string, output any, metadata map[string]any) PostHookResult {
	chain := e.registry.orderedHooks(toolName, StagePost)
	res := PostHookResult{}

	chainFailed := false
	for _, h := range chain {
		outcome := HookOutcome{HookID: h.ID}
		pr, err := h.Post(PostContext{ToolName: toolName, TrajectoryID: trajectoryID, Output: output, Metadata: metadata})
		if err != nil {
			outcome.Err = err
			chainFailed = true
			res.Chain.Outcomes = append(res.Chain.Outcomes, outcome)
			continue
		}
		if !pr.Continue {
			outcome.Stopped = true
			res.Chain.Outcomes = append(res.Chain.Outcomes, outcome)
			res.Chain.Stopped = true
			res.Chain.StopReason = pr.StopReason
			break
		}
		res.Chain.Outcomes = append(res.Chain.Outcomes, outcome)
	}

	if trajectoryID == "" {
		return res
	}
	e.mu.Lock()
	e.captured[trajectoryID] = output
	e.mu.Unlock()
	if e.trajectories != nil {
		e.trajectories.Put(trajectoryID)
	}

	if chainFailed || e.assessor == nil {
		return res
	}

	score, err := e.assessor(trajectoryID, output, metadata)
	if err != nil {
		return res
	}
	res.QualityScore = score
	res.HasQualityScore = true
	res.FeedbackEligible = score >= FeedbackThreshold
	res.PatternEligible = score >= PatternThreshold
	if e.trajectories != nil {
		e.trajectories.Complete(trajectoryID)
	}
	return res
}

// CapturedOutput returns the output captured for trajectoryID, if any.
func (e *Executor) CapturedOutput(trajectoryID string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.captured[trajectoryID]
	return v, ok
}
