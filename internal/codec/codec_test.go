package codec

import (
	"math/rand"
	"testing"

	"github.com/agentdb/memory/internal/vectorutil"
	"github.com/stretchr/testify/require"
)

func randNormalized(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return vectorutil.Normalize(v)
}

func TestFloat16RoundTripError(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := randNormalized(rng, 32)
	enc := EncodeFloat16(v)
	dec := DecodeFloat16(enc)
	require.Less(t, vectorutil.MSE(v, dec), 0.0001)
}

func TestPQ8NotTrainedFails(t *testing.T) {
	cb := NewPQ8Codebook(32, 16)
	_, err := cb.EncodePQ8(make([]float32, 32))
	require.ErrorIs(t, err, ErrNotTrained)
}

func TestPQ8TrainEncodeDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	dim := 32
	samples := make([][]float32, 200)
	for i := range samples {
		samples[i] = randNormalized(rng, dim)
	}
	cb := NewPQ8Codebook(dim, 16)
	require.NoError(t, cb.Train(samples, 5, 1))
	require.True(t, cb.Trained())

	enc, err := cb.EncodePQ8(samples[0])
	require.NoError(t, err)
	require.Equal(t, cb.BytesPerVector(), len(enc))

	dec, err := cb.DecodePQ8(enc)
	require.NoError(t, err)
	require.Less(t, vectorutil.MSE(samples[0], dec), 0.5)
}

func TestPQ4PackingTwoPerByte(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	dim := 32
	samples := make([][]float32, 200)
	for i := range samples {
		samples[i] = randNormalized(rng, dim)
	}
	cb := NewPQ4Codebook(dim, 8)
	require.NoError(t, cb.Train(samples, 5, 1))

	enc, err := cb.EncodePQ4(samples[0])
	require.NoError(t, err)
	require.Equal(t, cb.BytesPerVector(), len(enc))

	numCodes := 16 // bytesPerVector(8)*2
	dec, err := cb.DecodePQ4(enc, numCodes)
	require.NoError(t, err)
	require.NotEmpty(t, dec)
}

func TestBinaryEncodeDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	dim := 16
	samples := make([][]float32, 150)
	for i := range samples {
		samples[i] = randNormalized(rng, dim)
	}
	cb := NewBinaryCodebook(dim)
	require.NoError(t, cb.Train(samples, "median"))

	enc, err := cb.Encode(samples[0])
	require.NoError(t, err)
	require.Equal(t, (dim+7)/8, len(enc))

	dec, err := cb.Decode(enc)
	require.NoError(t, err)
	require.Len(t, dec, dim)
}
