package codec

import (
	"errors"
	"math/rand"
)

// ErrNotTrained is returned by PQ encode/decode before Train has been
// called (spec.md §4.2, memerr.CodecNotTrained).
var ErrNotTrained = errors.New("codec: PQ codebook not trained")

// DefaultNumSubvectors is spec.md §4.2's literal numSubvectors=96, kept for
// reference. It is NOT used to size codebooks: at D=1536 it yields 96
// bytes/vector for PQ8, which contradicts the 768-byte/8x figure in the
// tier table of spec.md §4.3. Per spec.md §9's open question ("verify byte
// counts against the tier table, not the source arithmetic"), codebooks
// here are sized from the tier's target byte count instead (see
// NewPQ8Codebook/NewPQ4Codebook); see DESIGN.md for the resolution.
const DefaultNumSubvectors = 96

// DefaultTrainIterations is the default k-means iteration count.
const DefaultTrainIterations = 10

// MinTrainingSamples is the minimum sample count required before Train will
// produce a codebook (spec.md §4.2).
const MinTrainingSamples = 100

// PQCodebook holds one trained codebook: centroidsPerSub centroids for each
// of numSub subvectors.
type PQCodebook struct {
	dimension      int
	numSub         int
	subDim         int
	centroidsPerSub int
	centroids      [][][]float32 // [subvector][centroid][component]
	trained        bool
	generation     int
}

// NewPQ8Codebook constructs an untrained codebook for the Cool tier: 256
// centroids per subvector, one byte emitted per subvector, sized so the
// encoded vector occupies exactly bytesPerVector bytes (768 at D=1536, per
// spec.md §4.3's tier table).
func NewPQ8Codebook(dimension, bytesPerVector int) *PQCodebook {
	return newCodebook(dimension, bytesPerVector, 256)
}

// NewPQ4Codebook constructs an untrained codebook for the Cold tier: 16
// centroids per subvector, two subvectors packed per byte, sized so the
// encoded vector occupies exactly bytesPerVector bytes (384 at D=1536).
func NewPQ4Codebook(dimension, bytesPerVector int) *PQCodebook {
	return newCodebook(dimension, bytesPerVector*2, 16)
}

func newCodebook(dimension, numSub, centroidsPerSub int) *PQCodebook {
	if numSub <= 0 {
		numSub = 1
	}
	subDim := dimension / numSub
	if subDim <= 0 {
		subDim = 1
		numSub = dimension
	}
	return &PQCodebook{
		dimension:       dimension,
		numSub:          numSub,
		subDim:          subDim,
		centroidsPerSub: centroidsPerSub,
	}
}

// Trained reports whether Train has populated centroids.
func (c *PQCodebook) Trained() bool { return c.trained }

// Generation tags which training run produced this codebook, surfaced on
// CompressedEmbedding.codebook_index per spec.md §3.
func (c *PQCodebook) Generation() int { return c.generation }

// Train fits centroids for every subvector independently via k-means
// (spec.md §4.2 "Training"). samples must each have length == dimension.
func (c *PQCodebook) Train(samples [][]float32, iterations int, seed int64) error {
	if len(samples) < MinTrainingSamples {
		return errors.New("codec: insufficient training samples")
	}
	if iterations <= 0 {
		iterations = DefaultTrainIterations
	}
	rng := rand.New(rand.NewSource(seed))
	centroids := make([][][]float32, c.numSub)
	for s := 0; s < c.numSub; s++ {
		sub := extractSubvectors(samples, s, c.subDim)
		centroids[s] = trainKMeans(sub, c.centroidsPerSub, c.subDim, iterations, rng)
	}
	c.centroids = centroids
	c.trained = true
	c.generation++
	return nil
}

func extractSubvectors(samples [][]float32, subIdx, subDim int) [][]float32 {
	out := make([][]float32, len(samples))
	start := subIdx * subDim
	for i, s := range samples {
		end := start + subDim
		if end > len(s) {
			end = len(s)
		}
		sv := make([]float32, subDim)
		copy(sv, s[start:end])
		out[i] = sv
	}
	return out
}

// EncodePQ8 quantizes v to one byte (centroid index) per subvector.
func (c *PQCodebook) EncodePQ8(v []float32) ([]byte, error) {
	codes, err := c.encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(codes))
	for i, code := range codes {
		out[i] = byte(code)
	}
	return out, nil
}

// DecodePQ8 reconstructs a vector from PQ8-encoded bytes.
func (c *PQCodebook) DecodePQ8(data []byte) ([]float32, error) {
	codes := make([]int, len(data))
	for i, b := range data {
		codes[i] = int(b)
	}
	return c.decode(codes)
}

// EncodePQ4 quantizes v to a nibble (4-bit centroid index) per subvector,
// packing two subvectors per byte (spec.md §9 open question resolution:
// "one nibble per subvector code, two subvectors per byte").
func (c *PQCodebook) EncodePQ4(v []float32) ([]byte, error) {
	codes, err := c.encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, (len(codes)+1)/2)
	for i, code := range codes {
		nibble := byte(code) & 0x0f
		if i%2 == 0 {
			out[i/2] = nibble
		} else {
			out[i/2] |= nibble << 4
		}
	}
	return out, nil
}

// DecodePQ4 reconstructs a vector from PQ4-encoded, nibble-packed bytes.
func (c *PQCodebook) DecodePQ4(data []byte, numCodes int) ([]float32, error) {
	codes := make([]int, numCodes)
	for i := 0; i < numCodes; i++ {
		b := data[i/2]
		if i%2 == 0 {
			codes[i] = int(b & 0x0f)
		} else {
			codes[i] = int((b >> 4) & 0x0f)
		}
	}
	return c.decode(codes)
}

func (c *PQCodebook) encode(v []float32) ([]int, error) {
	if !c.trained {
		return nil, ErrNotTrained
	}
	codes := make([]int, c.numSub)
	for s := 0; s < c.numSub; s++ {
		start := s * c.subDim
		end := start + c.subDim
		if end > len(v) {
			end = len(v)
		}
		codes[s] = nearestCentroid(v[start:end], c.centroids[s])
	}
	return codes, nil
}

func (c *PQCodebook) decode(codes []int) ([]float32, error) {
	if !c.trained {
		return nil, ErrNotTrained
	}
	out := make([]float32, 0, c.numSub*c.subDim)
	for s, code := range codes {
		if s >= len(c.centroids) {
			break
		}
		out = append(out, c.centroids[s][code]...)
	}
	return out, nil
}

// NumSubvectors returns the configured subvector (code) count.
func (c *PQCodebook) NumSubvectors() int { return c.numSub }

// BytesPerVector returns the per-vector byte count for the given
// centroidsPerSub (256 -> PQ8 one byte/subvector, 16 -> PQ4 one
// nibble/subvector) so callers can validate against spec.md §4.3's tier
// byte table.
func (c *PQCodebook) BytesPerVector() int {
	if c.centroidsPerSub > 16 {
		return c.numSub
	}
	return (c.numSub + 1) / 2
}
