package ranking

import (
	"math"

	"kbagent/internal/lexical"
)

// CosineDense computes the cosine similarity of two dense vectors.
// Mismatched lengths or a zero norm on either side yield 0 by definition,
// never an error: a provider/model mismatch must surface as a low score,
// not a crash.
func CosineDense(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSparse computes the cosine similarity of two sparse term vectors.
// Empty vectors or zero norms yield 0.
func CosineSparse(a, b lexical.Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map for the dot product.
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	var dot float64
	for token, w := range small {
		dot += w * large[token]
	}
	if dot == 0 {
		return 0
	}
	var normA, normB float64
	for _, w := range a {
		normA += w * w
	}
	for _, w := range b {
		normB += w * w
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
