package embedding

import (
	"context"
	"math"
)

// MockVectorSize is the fixed dimensionality of mock embeddings.
const MockVectorSize = 256

// Mock is a deterministic offline provider: the same text always yields the
// same vector, so the whole pipeline is testable and reproducible without
// network access.
type Mock struct {
	Model string
}

// NewMock creates the mock provider.
func NewMock(model string) *Mock {
	if model == "" {
		model = "mock-embedding-256"
	}
	return &Mock{Model: model}
}

// EmbedTexts computes a hash-based vector per text: each character at
// position i accumulates charCode % 97 into bucket (i*31) % size, then the
// vector is L2-normalized. Empty text yields the zero vector.
func (m *Mock) EmbedTexts(_ context.Context, texts []string) (*Batch, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = mockVector(text)
	}
	return &Batch{Vectors: vectors, Provider: ProviderMock, Model: m.Model}, nil
}

func mockVector(text string) []float32 {
	vec := make([]float32, MockVectorSize)
	for i, r := range []rune(text) {
		vec[(i*31)%MockVectorSize] += float32(int(r) % 97)
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}
