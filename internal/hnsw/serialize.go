package hnsw

import (
	"encoding/json"
	"fmt"
)

// envelopeVersion is the HNSW serialization format version (spec.md §4.1,
// §6). Deserialization fails on mismatch; future versions must add fields
// only in a backward-compatible way.
const envelopeVersion = 2

type envelope struct {
	Version      int            `json:"version"`
	Dimension    int            `json:"dimension"`
	Config       configEnvelope `json:"config"`
	EntryPointID string         `json:"entry_point_id"`
	MaxLevel     int            `json:"max_level"`
	Nodes        []nodeEnvelope `json:"nodes"`
	Vectors      []vecEnvelope  `json:"vectors"`
}

type configEnvelope struct {
	M              int    `json:"M"`
	EfConstruction int    `json:"efConstruction"`
	EfSearch       int    `json:"efSearch"`
	Metric         Metric `json:"metric"`
}

type nodeEnvelope struct {
	ID        string     `json:"id"`
	Level     int        `json:"level"`
	Neighbors [][]string `json:"neighbors"` // per level
}

type vecEnvelope struct {
	ID   string    `json:"id"`
	Data []float32 `json:"data"`
}

// Marshal serializes the index to the versioned JSON envelope from
// spec.md §4.1/§6.
func (idx *Index) Marshal() ([]byte, error) {
	env := envelope{
		Version:   envelopeVersion,
		Dimension: idx.cfg.Dimension,
		Config: configEnvelope{
			M:              idx.cfg.M,
			EfConstruction: idx.cfg.EfConstruction,
			EfSearch:       idx.cfg.EfSearch,
			Metric:         idx.cfg.Metric,
		},
		EntryPointID: idx.entryPoint,
		MaxLevel:     idx.maxLevel,
	}
	for id, n := range idx.nodes {
		ne := nodeEnvelope{ID: id, Level: n.level, Neighbors: make([][]string, n.level+1)}
		for l := 0; l <= n.level; l++ {
			ne.Neighbors[l] = n.neighborIDs(l)
		}
		env.Nodes = append(env.Nodes, ne)
	}
	for id, v := range idx.vectors {
		env.Vectors = append(env.Vectors, vecEnvelope{ID: id, Data: v})
	}
	return json.Marshal(env)
}

// Unmarshal reconstructs an Index from its serialized envelope. The
// resulting index answers Search identically (same ids, same distances) to
// the original for the same query, per spec.md §8 invariant 9.
func Unmarshal(data []byte) (*Index, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("hnsw: decode envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("hnsw: unsupported envelope version %d (want %d)", env.Version, envelopeVersion)
	}
	cfg := Config{
		Dimension:      env.Dimension,
		M:              env.Config.M,
		EfConstruction: env.Config.EfConstruction,
		EfSearch:       env.Config.EfSearch,
		Metric:         env.Config.Metric,
	}
	idx, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for _, v := range env.Vectors {
		vec := make([]float32, len(v.Data))
		copy(vec, v.Data)
		idx.vectors[v.ID] = vec
	}
	for _, ne := range env.Nodes {
		n := newNode(ne.ID, ne.Level)
		for l, ids := range ne.Neighbors {
			for _, id := range ids {
				n.addNeighbor(l, id)
			}
		}
		idx.nodes[ne.ID] = n
	}
	idx.entryPoint = env.EntryPointID
	idx.maxLevel = env.MaxLevel
	return idx, nil
}
