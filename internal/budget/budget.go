// Package budget implements the memory budget monitor and eviction
// contract (spec.md §4.10), grounded on the compression manager's
// per-vector locking shape for its own eviction path.
package budget

import (
	"sync"
	"time"
)

// Component identifies one of the three budgeted caches plus the
// aggregate overhead budget (spec.md §4.10 "Budgets" table).
type Component string

const (
	ComponentEpisodeCache    Component = "episode_cache"
	ComponentEmbeddingCache  Component = "embedding_cache"
	ComponentTrajectoryCache Component = "trajectory_cache"
	ComponentTotalOverhead   Component = "total_overhead"
)

// Default budgets (RULE-040, spec.md §4.10).
const (
	DefaultEpisodeCacheEntries    = 1000
	DefaultEmbeddingCacheBytes    = 100 * 1024 * 1024
	DefaultTrajectoryCacheEntries = 100
	DefaultTotalOverheadBytes     = 200 * 1024 * 1024
)

const (
	WarningRatio = 0.75
	ErrorRatio   = 1.0

	WarningEvictFraction = 0.20
	ErrorEvictFraction   = 0.40
)

// AlertLevel classifies how far over budget a component is.
type AlertLevel string

const (
	AlertNone    AlertLevel = ""
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// UsageProvider reports a component's current usage and its configured
// limit, in the component's own unit (entries or bytes).
type UsageProvider interface {
	Usage() (current, limit int64)
}

// Evictor performs an eviction of the requested fraction and reports the
// outcome (spec.md §4.10 "Eviction response").
type Evictor interface {
	Evict(fraction float64) EvictionResult
}

// EvictionResult is the per-component eviction outcome (spec.md §4.10).
type EvictionResult struct {
	Requested int
	Evicted   int
	DurationMs int64
	Success   bool
	Error     string
}

// Alert reports one component crossing a threshold (spec.md §4.10
// "Thresholds").
type Alert struct {
	Component Component
	Level     AlertLevel
	Current   int64
	Limit     int64
	Ratio     float64
}

type registeredComponent struct {
	provider UsageProvider
	evictor  Evictor
}

// Monitor periodically checks registered components against their budgets
// and drives eviction on threshold breach.
type Monitor struct {
	mu         sync.Mutex
	components map[Component]registeredComponent
	now        func() time.Time
}

// New builds an empty Monitor; components are registered via Register.
func New() *Monitor {
	return &Monitor{
		components: make(map[Component]registeredComponent),
		now:        time.Now,
	}
}

// Register attaches a usage provider and evictor for component.
func (m *Monitor) Register(component Component, provider UsageProvider, evictor Evictor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[component] = registeredComponent{provider: provider, evictor: evictor}
}

// Check collects usage from every registered provider and returns an
// Alert for each component whose ratio is at or above WarningRatio
// (spec.md §4.10 "No alert below warning").
func (m *Monitor) Check() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var alerts []Alert
	for component, rc := range m.components {
		current, limit := rc.provider.Usage()
		if limit <= 0 {
			continue
		}
		ratio := float64(current) / float64(limit)
		if ratio < WarningRatio {
			continue
		}
		level := AlertWarning
		if ratio >= ErrorRatio {
			level = AlertError
		}
		alerts = append(alerts, Alert{
			Component: component,
			Level:     level,
			Current:   current,
			Limit:     limit,
			Ratio:     ratio,
		})
	}
	return alerts
}

// React runs Check and, for every alert, evicts the fraction matching its
// level (20% warning, 40% error). A total_overhead alert fans out eviction
// to the three caches (spec.md §4.10 "Eviction response").
func (m *Monitor) React() map[Component]EvictionResult {
	alerts := m.Check()
	results := make(map[Component]EvictionResult)

	for _, a := range alerts {
		fraction := WarningEvictFraction
		if a.Level == AlertError {
			fraction = ErrorEvictFraction
		}

		if a.Component == ComponentTotalOverhead {
			for _, c := range []Component{ComponentEpisodeCache, ComponentEmbeddingCache, ComponentTrajectoryCache} {
				results[c] = m.evictComponent(c, fraction)
			}
			continue
		}
		results[a.Component] = m.evictComponent(a.Component, fraction)
	}
	return results
}

func (m *Monitor) evictComponent(component Component, fraction float64) EvictionResult {
	m.mu.Lock()
	rc, ok := m.components[component]
	m.mu.Unlock()
	if !ok || rc.evictor == nil {
		return EvictionResult{Success: false, Error: "no evictor registered"}
	}
	start := m.now()
	result := rc.evictor.Evict(fraction)
	result.DurationMs = m.now().Sub(start).Milliseconds()
	return result
}
