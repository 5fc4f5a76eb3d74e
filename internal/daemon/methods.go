package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/agentdb/memory/internal/budget"
	"github.com/agentdb/memory/internal/capability"
	"github.com/agentdb/memory/internal/episode"
	"github.com/agentdb/memory/internal/hooks"
	"github.com/agentdb/memory/internal/memerr"
	"github.com/agentdb/memory/internal/provenance"
	"github.com/agentdb/memory/internal/routing"
	"github.com/agentdb/memory/pkg/metrics"
	"github.com/agentdb/memory/pkg/repo"
)

// Services bundles every component the RPC method surface dispatches
// into (spec.md §4.7 "Each service exposes a small set").
type Services struct {
	Episodes     *episode.Store
	Capabilities *capability.Index
	Routing      *routing.Engine
	Metrics      *metrics.Registry
	Tokens       *budget.TokenTracker
	StartedAt    time.Time
	Provenance   *provenance.Graph                         // nil when no ancestry has been recorded
	CapabilityDB *repo.Neo4jRepo[capability.Entry, string] // nil unless Neo4j is configured
	Hooks        *hooks.Executor                           // nil disables pre/post hook execution
	Logger       *slog.Logger
}

// RegisterMethods binds the full method surface from spec.md §6 onto d.
func RegisterMethods(d *Dispatcher, svc *Services) {
	d.Register("ping", methodPing(svc))
	d.Register("health.check", methodHealthCheck(svc))
	d.Register("health.metrics", methodHealthMetrics(svc))

	d.Register("episode.record", methodEpisodeRecord(svc))
	d.Register("episode.retrieve", methodEpisodeRetrieve(svc))
	d.Register("episode.inject", methodEpisodeRetrieve(svc)) // inject == retrieve + caller applies injection filter client-side
	d.Register("feedback.provide", methodFeedbackProvide(svc))

	d.Register("capability.lookup", methodCapabilityLookup(svc))
	d.Register("desc.retrieve", methodCapabilityLookup(svc))
	d.Register("desc.inject", methodCapabilityLookup(svc))

	d.Register("route.select", methodRouteSelect(svc))
	d.Register("route.explain", methodRouteExplain(svc))
	d.Register("pipeline.generate", methodPipelineGenerate(svc))

	d.Register("memory.store", methodMemoryStore(svc))
	d.Register("memory.getByDomain", methodMemoryGetByDomain(svc))
	d.Register("memory.getByTags", methodMemoryGetByTags(svc))
	d.Register("memory.delete", methodMemoryDelete(svc))
	d.Register("pattern.query", methodPatternQuery(svc))
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, memerr.New(memerr.InvalidParams, "invalid params: "+err.Error())
	}
	return v, nil
}

func methodPing(svc *Services) MethodFunc {
	return func(json.RawMessage) (any, error) {
		return map[string]any{"pong": true, "uptime": time.Since(svc.StartedAt).Seconds()}, nil
	}
}

func methodHealthCheck(svc *Services) MethodFunc {
	return func(json.RawMessage) (any, error) {
		return map[string]any{"status": "ok", "uptime": time.Since(svc.StartedAt).Seconds()}, nil
	}
}

func methodHealthMetrics(svc *Services) MethodFunc {
	return func(json.RawMessage) (any, error) {
		if svc.Metrics == nil {
			return map[string]any{"metrics": ""}, nil
		}
		return map[string]any{"metrics": svc.Metrics.Render()}, nil
	}
}

type episodeRecordParams struct {
	TaskText       string `json:"taskText"`
	AnswerText     string `json:"answerText"`
	AgentType      string `json:"agentType"`
	Domain         string `json:"domain"`
	ReasoningTrace string `json:"reasoningTrace"`
	TrajectoryID   string `json:"trajectoryId"`
}

// methodEpisodeRecord runs the recording through the pre/post hook chain
// (spec.md §4.9): a pre-hook may rewrite the task/answer/agent/domain text
// before it is recorded, and the recorded episode is captured as the
// post-hook's output under TrajectoryID, feeding the trajectory cache the
// budget monitor evicts from (spec.md §4.10).
func methodEpisodeRecord(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[episodeRecordParams](raw)
		if err != nil {
			return nil, err
		}
		if p.TaskText == "" {
			return nil, memerr.New(memerr.Validation, "taskText is required")
		}

		if svc.Hooks != nil {
			input, _ := svc.Hooks.RunPre("episode.record", map[string]any{
				"taskText":       p.TaskText,
				"answerText":     p.AnswerText,
				"agentType":      p.AgentType,
				"domain":         p.Domain,
				"reasoningTrace": p.ReasoningTrace,
			})
			p.TaskText, _ = input["taskText"].(string)
			p.AnswerText, _ = input["answerText"].(string)
			p.AgentType, _ = input["agentType"].(string)
			p.Domain, _ = input["domain"].(string)
			p.ReasoningTrace, _ = input["reasoningTrace"].(string)
		}

		ep, err := svc.Episodes.Record(context.Background(), p.TaskText, p.AnswerText, p.AgentType, p.Domain, p.ReasoningTrace)
		if err != nil {
			return nil, err
		}
		if svc.Hooks != nil {
			svc.Hooks.RunPost("episode.record", p.TrajectoryID, map[string]any{"episodeId": ep.EpisodeID}, nil)
		}
		return map[string]any{"episodeId": ep.EpisodeID}, nil
	}
}

type episodeRetrieveParams struct {
	QueryText     string `json:"queryText"`
	K             int    `json:"k"`
	Phase         string `json:"phase"`
	MinConfidence string `json:"minConfidence"`
}

func methodEpisodeRetrieve(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[episodeRetrieveParams](raw)
		if err != nil {
			return nil, err
		}
		if p.QueryText == "" {
			return nil, memerr.New(memerr.Validation, "queryText is required")
		}
		k := p.K
		if k <= 0 {
			k = episode.WindowSize(p.Phase)
		}
		results, err := svc.Episodes.Retrieve(context.Background(), p.QueryText, episode.RetrieveOptions{
			K:             k,
			MinConfidence: episode.ConfidenceLevel(p.MinConfidence),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	}
}

type feedbackParams struct {
	EpisodeID string `json:"episodeId"`
	Success   bool   `json:"success"`
}

func methodFeedbackProvide(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[feedbackParams](raw)
		if err != nil {
			return nil, err
		}
		if err := svc.Episodes.RecordOutcome(p.EpisodeID, p.Success); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

type capabilityLookupParams struct {
	QueryVector []float32 `json:"queryVector"`
	Domain      string    `json:"domain"`
	K           int       `json:"k"`
}

func methodCapabilityLookup(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[capabilityLookupParams](raw)
		if err != nil {
			return nil, err
		}
		k := p.K
		if k <= 0 {
			k = 5
		}
		var results []capability.SearchResult
		if p.Domain != "" {
			results, err = svc.Capabilities.SearchByDomain(p.QueryVector, capability.Domain(p.Domain), k)
		} else {
			results, err = svc.Capabilities.Search(p.QueryVector, k)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	}
}

type routeSelectParams struct {
	Task   string `json:"task"`
	Domain string `json:"domain"`
}

func methodRouteSelect(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[routeSelectParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Task == "" {
			return nil, memerr.New(memerr.Validation, "task is required")
		}
		result, err := svc.Routing.Select(context.Background(), p.Task, capability.Domain(p.Domain))
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

type routeExplainParams struct {
	Task         string `json:"task"`
	Domain       string `json:"domain"`
	ProvenanceID string `json:"provenanceId"`
}

// methodRouteExplain returns the same routing result as route.select plus,
// when provenanceId names a recorded node, the ancestry chain and L-Score
// that justifies it (spec.md §4.6 "Provenance").
func methodRouteExplain(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[routeExplainParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Task == "" {
			return nil, memerr.New(memerr.Validation, "task is required")
		}
		result, err := svc.Routing.Select(context.Background(), p.Task, capability.Domain(p.Domain))
		if err != nil {
			return nil, err
		}
		out := map[string]any{"route": result}
		if p.ProvenanceID != "" && svc.Provenance != nil {
			ancestors, warnings := svc.Provenance.Ancestors(p.ProvenanceID)
			out["provenance"] = map[string]any{
				"ancestors":    ancestors,
				"cycleWarnings": warnings,
				"lScore":       svc.Provenance.LScore(p.ProvenanceID),
			}
		}
		return out, nil
	}
}

type pipelineGenerateParams struct {
	PipelineID string `json:"pipelineId"`
	Task       string `json:"task"`
	MaxStages  int    `json:"maxStages"`
}

func methodPipelineGenerate(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineGenerateParams](raw)
		if err != nil {
			return nil, err
		}
		pipeline, err := svc.Routing.GeneratePipeline(context.Background(), p.PipelineID, p.Task, p.MaxStages)
		if err != nil {
			return nil, err
		}
		return pipeline, nil
	}
}

type memoryStoreParams struct {
	AgentKey string           `json:"agentKey"`
	Entry    capability.Entry `json:"entry"`
}

func methodMemoryStore(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[memoryStoreParams](raw)
		if err != nil {
			return nil, err
		}
		if err := svc.Capabilities.Put(p.AgentKey, p.Entry); err != nil {
			return nil, err
		}
		if svc.CapabilityDB != nil {
			if err := capability.SyncEntry(context.Background(), svc.CapabilityDB, p.Entry); err != nil && svc.Logger != nil {
				svc.Logger.Warn("capability neo4j sync failed", "agentKey", p.AgentKey, "err", err)
			}
		}
		return map[string]any{"ok": true}, nil
	}
}

type memoryDomainParams struct {
	Domain string `json:"domain"`
	K      int    `json:"k"`
}

// methodMemoryGetByDomain lists every capability entry tagged with domain,
// sorted by agentKey for deterministic output (there is no query vector
// here, so Index.Search/SearchByDomain don't apply — capability.Index.Entry
// is keyed by agentKey, not domain, so a plain lookup would essentially
// always miss).
func methodMemoryGetByDomain(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[memoryDomainParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Domain == "" {
			return nil, memerr.New(memerr.Validation, "domain is required")
		}
		domain := capability.Domain(p.Domain)
		out := make([]capability.Entry, 0)
		for _, e := range svc.Capabilities.Entries() {
			if e.HasDomain(domain) {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].AgentKey < out[j].AgentKey })
		if p.K > 0 && len(out) > p.K {
			out = out[:p.K]
		}
		return map[string]any{"entries": out}, nil
	}
}

type memoryTagsParams struct {
	Tags []string `json:"tags"`
	K    int      `json:"k"`
}

// methodMemoryGetByTags lists every capability entry whose keywords
// intersect p.Tags (case-insensitively), sorted by agentKey.
func methodMemoryGetByTags(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[memoryTagsParams](raw)
		if err != nil {
			return nil, err
		}
		if len(p.Tags) == 0 {
			return nil, memerr.New(memerr.Validation, "tags is required")
		}
		out := make([]capability.Entry, 0)
		for _, e := range svc.Capabilities.Entries() {
			if e.HasAnyKeyword(p.Tags) {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].AgentKey < out[j].AgentKey })
		if p.K > 0 && len(out) > p.K {
			out = out[:p.K]
		}
		return map[string]any{"entries": out}, nil
	}
}

type memoryDeleteParams struct {
	AgentKey  string `json:"agentKey"`
	EpisodeID string `json:"episodeId"`
}

// methodMemoryDelete removes the named capability entry (and, if
// svc.CapabilityDB is configured, its Neo4j-backed copy) and/or the named
// episode. At least one of agentKey/episodeId must be set.
func methodMemoryDelete(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[memoryDeleteParams](raw)
		if err != nil {
			return nil, err
		}
		if p.AgentKey == "" && p.EpisodeID == "" {
			return nil, memerr.New(memerr.Validation, "agentKey or episodeId is required")
		}

		if p.AgentKey != "" {
			if err := svc.Capabilities.Delete(p.AgentKey); err != nil {
				return nil, err
			}
			if svc.CapabilityDB != nil {
				if err := svc.CapabilityDB.Delete(context.Background(), p.AgentKey); err != nil && svc.Logger != nil {
					svc.Logger.Warn("capability neo4j delete failed", "agentKey", p.AgentKey, "err", err)
				}
			}
		}
		if p.EpisodeID != "" {
			if err := svc.Episodes.Delete(p.EpisodeID); err != nil {
				return nil, err
			}
		}
		return map[string]any{"ok": true}, nil
	}
}

type patternQueryParams struct {
	SessionID string `json:"sessionId"`
	TaskType  string `json:"taskType"`
	AgentID   string `json:"agentId"`
}

func methodPatternQuery(svc *Services) MethodFunc {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[patternQueryParams](raw)
		if err != nil {
			return nil, err
		}
		if svc.Tokens == nil {
			return map[string]any{"stats": budget.Stats{}}, nil
		}
		stats := svc.Tokens.Query(budget.Filter{SessionID: p.SessionID, TaskType: p.TaskType, AgentID: p.AgentID})
		return map[string]any{"stats": stats}, nil
	}
}
