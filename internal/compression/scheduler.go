package compression

import (
	"context"
	"time"
)

// DefaultAutoTransitionInterval is the scheduler's default period
// (spec.md §4.3 "default hourly").
const DefaultAutoTransitionInterval = time.Hour

// RunAutoTransition starts a periodic timer that decays heat for all
// records and runs CheckTransitions, until ctx is cancelled. Training is
// not triggered here or anywhere else automatically: codebooks are trained
// only by an explicit TrainAll call, and until then CheckTransitions skips
// Cool, Cold and Frozen targets.
func (m *Manager) RunAutoTransition(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutoTransitionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DecayAll()
			m.CheckTransitions()
		}
	}
}
