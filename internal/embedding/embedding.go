// Package embedding provides cosine similarity over the 384-dimensional
// vectors the matching core consumes (spec.md §4.C). Embedding
// generation itself is out of scope (spec.md §1) — this package only
// computes similarity between already-materialized vectors.
//
// Grounded on _examples/ashita-ai-akashi/internal/conflicts/scorer.go's
// cosineSimilarity: a manual dot-product/norm implementation, not a
// numerics library — the teacher makes the same choice for the same
// vector sizes, so we follow it rather than adding a linear-algebra
// dependency nothing else in the pack uses.
package embedding

import "math"

// Dimensions is the expected vector length (spec.md §4.C).
const Dimensions = 384

// Similarity computes cosine similarity between two vectors. Vectors of
// mismatched length, or with zero norm, yield 0 rather than NaN or an
// error — spec.md is explicit that these degrade to a neutral score
// rather than aborting a batch.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BatchSimilarity fixes one query vector and computes its similarity
// against many candidates, avoiding recomputing the query's norm on each
// call (spec.md §4.C: "a batch form that fixes one query vector and
// iterates many candidates").
func BatchSimilarity(query []float32, candidates [][]float32) []float64 {
	out := make([]float64, len(candidates))
	if len(query) == 0 {
		return out
	}
	var queryNorm float64
	for _, v := range query {
		fv := float64(v)
		queryNorm += fv * fv
	}
	queryNorm = math.Sqrt(queryNorm)
	if queryNorm == 0 {
		return out
	}

	for i, cand := range candidates {
		if len(cand) != len(query) || len(cand) == 0 {
			continue
		}
		var dot, candNorm float64
		for j := range cand {
			fc := float64(cand[j])
			dot += float64(query[j]) * fc
			candNorm += fc * fc
		}
		candNorm = math.Sqrt(candNorm)
		if candNorm == 0 {
			continue
		}
		out[i] = dot / (queryNorm * candNorm)
	}
	return out
}

// Normalize maps a raw cosine similarity into [0, 1] via
// clamp((sim-0.3)/0.6, 0, 1), reflecting the observation (spec.md §4.C)
// that realistic document cosine similarities cluster in [0.3, 0.9].
func Normalize(sim float64) float64 {
	n := (sim - 0.3) / 0.6
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
