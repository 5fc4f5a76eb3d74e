package hnsw

// quantizeInt8 produces a per-vector int8 quantized form using a simple
// scale + zero-point scheme: values are linearly mapped from [min, max] of
// the vector onto [-127, 127]. This is the IO/memory optimization described
// in spec.md §4.1 — graph traversal always uses the retained full-precision
// vectors, so the quantized form is not used for ranking, and Marshal does
// not write it.
func quantizeInt8(v []float32) quantVector {
	if len(v) == 0 {
		return quantVector{}
	}
	min, max := v[0], v[0]
	for _, x := range v {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	scale := (max - min) / 254.0
	if scale == 0 {
		scale = 1
	}
	zero := min
	codes := make([]int8, len(v))
	for i, x := range v {
		q := int((x-zero)/scale) - 127
		if q > 127 {
			q = 127
		}
		if q < -127 {
			q = -127
		}
		codes[i] = int8(q)
	}
	return quantVector{codes: codes, scale: scale, zero: zero}
}

func dequantizeInt8(q quantVector) []float32 {
	out := make([]float32, len(q.codes))
	for i, c := range q.codes {
		out[i] = (float32(c)+127)*q.scale + q.zero
	}
	return out
}
