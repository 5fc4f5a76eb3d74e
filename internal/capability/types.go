// Package capability implements the agent capability index and its
// content-hash cache (spec.md §4.4): a fast in-memory map from agent keys
// to embedded capability vectors, persisted atomically so a later process
// with unchanged agent directory contents skips re-embedding.
package capability

import (
	"strings"
	"time"
)

// Domain is a closed-enumeration tag on a capability entry (spec.md §3).
type Domain string

const (
	DomainCoding       Domain = "coding"
	DomainResearch     Domain = "research"
	DomainWriting      Domain = "writing"
	DomainPlanning     Domain = "planning"
	DomainQA           Domain = "qa"
	DomainReview       Domain = "review"
	DomainGeneral      Domain = "general"
)

// Entry is a per-agent capability record (spec.md §3 "Capability Entry").
type Entry struct {
	AgentKey    string    `json:"agentKey"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Domains     []Domain  `json:"domains"`
	Keywords    []string  `json:"keywords"`
	Embedding   []float32 `json:"embedding"`
	SuccessRate float64   `json:"successRate"`
	TaskCount   int       `json:"taskCount"`
	IndexedAt   int64     `json:"indexedAt"`
}

// HasDomain reports whether d appears in the entry's domain set.
func (e Entry) HasDomain(d Domain) bool {
	for _, x := range e.Domains {
		if x == d {
			return true
		}
	}
	return false
}

// HasAnyKeyword reports whether any of tags matches one of the entry's
// keywords, case-insensitively.
func (e Entry) HasAnyKeyword(tags []string) bool {
	for _, k := range e.Keywords {
		for _, t := range tags {
			if strings.EqualFold(k, t) {
				return true
			}
		}
	}
	return false
}

// SearchResult is a ranked capability match (spec.md §4.4 "search").
type SearchResult struct {
	Entry         Entry
	Similarity    float32
	DomainOverlap bool
}

// nowMillis is overridable for deterministic tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
