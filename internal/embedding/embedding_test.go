package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, Similarity(v, v), 1e-9)
}

func TestSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, Similarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestSimilarityMismatchedLength(t *testing.T) {
	assert.Equal(t, 0.0, Similarity([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestSimilarityZeroNorm(t *testing.T) {
	assert.Equal(t, 0.0, Similarity([]float32{0, 0}, []float32{1, 2}))
}

func TestBatchSimilarityMatchesScalar(t *testing.T) {
	query := []float32{0.5, 0.2, -0.1}
	candidates := [][]float32{
		{0.4, 0.1, 0.0},
		{-0.5, -0.2, 0.1},
		{1, 2}, // mismatched length -> 0
	}
	got := BatchSimilarity(query, candidates)
	for i, c := range candidates {
		if len(c) != len(query) {
			assert.Equal(t, 0.0, got[i])
			continue
		}
		assert.InDelta(t, Similarity(query, c), got[i], 1e-9)
	}
}

func TestNormalizeClamps(t *testing.T) {
	assert.Equal(t, 0.0, Normalize(0.1))
	assert.Equal(t, 1.0, Normalize(0.95))
	assert.InDelta(t, 0.5, Normalize(0.6), 1e-9)
}
