// Package episode implements the episode store and retrieval filter
// (spec.md §4.6): a recorded-task memory keyed by episode id, whose vector
// lives in internal/hnsw for search and internal/compression for tiered
// storage, grounded on the same store/search split as internal/capability.
package episode

import (
	"time"
)

// Episode is a recorded prior task with its response (spec.md §3
// "Episode").
type Episode struct {
	EpisodeID      string
	TaskText       string
	AnswerText     string
	AgentType      string
	ReasoningTrace string
	Domain         string
	CreatedAt      time.Time

	Successes int
	Failures  int
}

// MinOutcomesForRate is the minimum number of outcomes before SuccessRate
// is considered defined (spec.md §3 "Episode" invariant).
const MinOutcomesForRate = 3

// SuccessRate returns successes/(successes+failures), and false when the
// outcome count is below MinOutcomesForRate.
func (e *Episode) SuccessRate() (float64, bool) {
	total := e.Successes + e.Failures
	if total < MinOutcomesForRate {
		return 0, false
	}
	return float64(e.Successes) / float64(total), true
}

// OutcomeCount is the total number of recorded outcomes for the episode.
func (e *Episode) OutcomeCount() int {
	return e.Successes + e.Failures
}
