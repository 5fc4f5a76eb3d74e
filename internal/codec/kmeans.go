package codec

import (
	"math/rand"

	"github.com/agentdb/memory/internal/vectorutil"
)

// trainKMeans runs a fixed number of Lloyd iterations over samples (each of
// subvectorDim length), seeding centroids from random samples, as specified
// for PQ training in spec.md §4.2.
func trainKMeans(samples [][]float32, k, subvectorDim, iterations int, rng *rand.Rand) [][]float32 {
	if len(samples) == 0 {
		return make([][]float32, k)
	}
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		src := samples[rng.Intn(len(samples))]
		c := make([]float32, subvectorDim)
		copy(c, src)
		centroids[i] = c
	}

	assign := make([]int, len(samples))
	for iter := 0; iter < iterations; iter++ {
		for i, s := range samples {
			assign[i] = nearestCentroid(s, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, subvectorDim)
		}
		for i, s := range samples {
			c := assign[i]
			counts[c]++
			for d := 0; d < subvectorDim; d++ {
				sums[c][d] += float64(s[d])
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keep previous centroid; starved cluster
			}
			for d := 0; d < subvectorDim; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := vectorutil.SquaredEuclidean(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		d := vectorutil.SquaredEuclidean(v, centroids[i])
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
