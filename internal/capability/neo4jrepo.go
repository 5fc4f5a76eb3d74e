package capability

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/agentdb/memory/pkg/repo"
)

// NewNeo4jRepo builds a generic node repository for Entry, persisting
// capability entries as a durable backing store alongside the disk cache
// (spec.md §4.4's cache survives process restarts; this survives disk
// loss too). Grounded directly on pkg/repo/neo4j.go's generic CRUD
// adapter — entries have no edges, so the plain Repository[T,ID] shape
// fits without custom Cypher.
func NewNeo4jRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[Entry, string] {
	return repo.NewNeo4jRepo[Entry, string](
		driver,
		"CapabilityEntry",
		entryToMap,
		entryFromRecord,
		repo.WithIDKey[Entry, string]("agentKey"),
	)
}

func entryToMap(e Entry) map[string]any {
	domains := make([]string, len(e.Domains))
	for i, d := range e.Domains {
		domains[i] = string(d)
	}
	embedding := make([]float64, len(e.Embedding))
	for i, v := range e.Embedding {
		embedding[i] = float64(v)
	}
	return map[string]any{
		"agentKey":    e.AgentKey,
		"name":        e.Name,
		"description": e.Description,
		"domains":     domains,
		"keywords":    e.Keywords,
		"embedding":   embedding,
		"successRate": e.SuccessRate,
		"taskCount":   int64(e.TaskCount),
		"indexedAt":   e.IndexedAt,
	}
}

func entryFromRecord(rec *neo4j.Record) (Entry, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Entry{}, err
	}
	props := node.Props

	domains := asDomains(props["domains"])
	embedding := asFloat32s(props["embedding"])

	return Entry{
		AgentKey:    asString(props["agentKey"]),
		Name:        asString(props["name"]),
		Description: asString(props["description"]),
		Domains:     domains,
		Keywords:    asStrings(props["keywords"]),
		Embedding:   embedding,
		SuccessRate: asFloat64(props["successRate"]),
		TaskCount:   int(asFloat64(props["taskCount"])),
		IndexedAt:   int64(asFloat64(props["indexedAt"])),
	}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, asString(r))
	}
	return out
}

func asDomains(v any) []Domain {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Domain, 0, len(raw))
	for _, r := range raw {
		out = append(out, Domain(asString(r)))
	}
	return out
}

func asFloat32s(v any) []float32 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, r := range raw {
		out = append(out, float32(asFloat64(r)))
	}
	return out
}

// SyncEntry upserts e into the Neo4j-backed repository, using Create then
// falling back to Update on an existing node (Neo4jRepo has no native
// upsert).
func SyncEntry(ctx context.Context, r *repo.Neo4jRepo[Entry, string], e Entry) error {
	if _, err := r.Create(ctx, e); err != nil {
		_, err = r.Update(ctx, e)
		return err
	}
	return nil
}
