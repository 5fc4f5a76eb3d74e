// Package hooks implements the pre/post-tool-use hook registry and
// sequential executor (spec.md §4.9), modeling the source's dynamic hook
// handlers as a closed capability trait `{id, priority, handler}` per
// spec.md §9's guidance on dynamic dispatch in the source.
package hooks

import (
	"fmt"
	"sort"
	"sync"
)

// Stage distinguishes pre- and post-tool-use hooks.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
)

// RequiredHookIDs must be registered before Initialize or it fails
// (spec.md §4.9 "Required hooks").
var RequiredHookIDs = []string{"task-result-capture", "quality-assessment-trigger"}

// PreResult is what a pre-hook returns.
type PreResult struct {
	// Continue false halts the remaining chain (spec.md §4.9).
	Continue bool
	// StopReason explains why Continue is false.
	StopReason string
	// ModifiedInput threads through subsequent hooks when non-nil.
	ModifiedInput map[string]any
}

// PostResult is what a post-hook returns.
type PostResult struct {
	Continue   bool
	StopReason string
}

// PreHandler runs before a tool invocation.
type PreHandler func(ctx PreContext) (PreResult, error)

// PostHandler runs after a tool invocation.
type PostHandler func(ctx PostContext) (PostResult, error)

// PreContext is passed to a pre-hook.
type PreContext struct {
	ToolName string
	Input    map[string]any
}

// PostContext is passed to a post-hook.
type PostContext struct {
	ToolName     string
	TrajectoryID string
	Output       any
	Metadata     map[string]any
}

// Hook is one registered handler (spec.md §4.9 "Contract").
type Hook struct {
	ID       string
	Priority int // lower runs first
	ToolName string // empty means match every tool
	Pre      PreHandler
	Post     PostHandler
}

func (h Hook) matches(toolName string) bool {
	return h.ToolName == "" || h.ToolName == toolName
}

// Registry holds registered hooks, closed to new registrations after
// Initialize (spec.md §4.9 "Registration is closed after initialize()").
type Registry struct {
	mu          sync.Mutex
	hooks       map[string]Hook
	initialized bool
}

// New builds an empty, open registry.
func New() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Register adds hook h. It fails once the registry is initialized
// (spec.md §4.9 "late registrations fail loudly").
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("hooks: registry closed, cannot register %q after initialize", h.ID)
	}
	r.hooks[h.ID] = h
	return nil
}

// Initialize closes the registry to further registration, failing if any
// required hook id is missing (spec.md §4.9 "Required hooks").
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range RequiredHookIDs {
		if _, ok := r.hooks[id]; !ok {
			return fmt.Errorf("hooks: required hook %q not registered before initialize", id)
		}
	}
	r.initialized = true
	return nil
}

// orderedHooks returns hooks matching toolName and stage, ascending by
// priority (spec.md §4.9 "Hooks run sequentially in ascending priority").
func (r *Registry) orderedHooks(toolName string, stage Stage) []Hook {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Hook
	for _, h := range r.hooks {
		if !h.matches(toolName) {
			continue
		}
		if stage == StagePre && h.Pre == nil {
			continue
		}
		if stage == StagePost && h.Post == nil {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
