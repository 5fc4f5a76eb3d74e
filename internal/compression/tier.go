// Package compression implements the five-tier adaptive vector store from
// spec.md §4.3: heat-tracked one-way tier demotion, PQ codebook training,
// and reconstruction-error bounds, built on internal/codec and
// internal/hnsw's vector conventions.
package compression

import "fmt"

// Tier is one of the five compression states. Tiers only ever advance in
// this order; spec.md §3 calls a backward transition a programming error.
type Tier int

const (
	Hot Tier = iota
	Warm
	Cool
	Cold
	Frozen
)

func (t Tier) String() string {
	switch t {
	case Hot:
		return "hot"
	case Warm:
		return "warm"
	case Cool:
		return "cool"
	case Cold:
		return "cold"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// TierConfig captures one row of spec.md §4.3's tier table.
type TierConfig struct {
	Tier         Tier
	HeatFloor    float64 // minimum heat score to stay at/advance to this tier
	BytesAtD1536 int
	MaxMSE       float64 // reconstruction-error bound
}

// DefaultTierConfigs returns the fixed heat bands and byte counts from
// spec.md §4.3, scaled for the given dimension.
func DefaultTierConfigs(dimension int) []TierConfig {
	scale := float64(dimension) / 1536.0
	return []TierConfig{
		{Tier: Hot, HeatFloor: 0.8, BytesAtD1536: int(6144 * scale), MaxMSE: 0.0001},
		{Tier: Warm, HeatFloor: 0.4, BytesAtD1536: int(3072 * scale), MaxMSE: 0.0001},
		{Tier: Cool, HeatFloor: 0.1, BytesAtD1536: int(768 * scale), MaxMSE: 0.02},
		{Tier: Cold, HeatFloor: 0.01, BytesAtD1536: int(384 * scale), MaxMSE: 0.05},
		{Tier: Frozen, HeatFloor: 0.0, BytesAtD1536: int(192 * scale), MaxMSE: 0.10},
	}
}

// TierForHeat returns the tier whose heat band contains the given heat
// score: the least-compressed tier whose heat floor the score meets (i.e.
// the tier checkTransitions would place this vector in).
func TierForHeat(configs []TierConfig, heat float64) Tier {
	// configs are iterated in declared (Hot..Frozen) order with descending
	// floors; the first floor met is the band the score falls in.
	for _, c := range configs {
		if heat >= c.HeatFloor {
			return c.Tier
		}
	}
	return Frozen
}

// ErrInvalidTier is returned by TransitionTier on a backward or no-op move.
var ErrInvalidTier = fmt.Errorf("compression: invalid tier transition")
