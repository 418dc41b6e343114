// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectors implements the float32 kernels the pipelines run on
// embedding batches: L2 normalization, prompt-averaged similarity, pairwise
// softmax scoring, cosine-distance matrices, and precomputed-distance DBSCAN.
//
// All functions are deterministic and allocate their outputs; inputs are
// never mutated unless documented otherwise.
package vectors

import "math"

// Dot returns the dot product of two vectors. Mismatched lengths use the
// shorter vector.
func Dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// L2Norm computes the Euclidean norm of a vector in float64 precision.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// NormalizeRows returns a copy of the batch with every row scaled to unit
// L2 norm. Zero rows are returned unchanged so callers never divide by zero.
//
// Pipelines normalize on read: cache entries are not guaranteed to be
// normalized, but every transform downstream assumes unit rows.
func NormalizeRows(rows [][]float32) [][]float32 {
	out := make([][]float32, len(rows))
	for i, row := range rows {
		norm := L2Norm(row)
		dst := make([]float32, len(row))
		if norm == 0 {
			copy(dst, row)
		} else {
			for j, x := range row {
				dst[j] = x / float32(norm)
			}
		}
		out[i] = dst
	}
	return out
}

// SimilarityMeanPrompts computes the image-to-tag similarity matrix.
//
// images is [N][D] (unit rows); prompts is [T][P][D] — each tag has P prompt
// vectors. The score of image n against tag t is the mean of the P prompt
// dot products:
//
//	S[n][t] = mean_p( images[n] · prompts[t][p] )
func SimilarityMeanPrompts(images [][]float32, prompts [][][]float32) [][]float32 {
	n, t := len(images), len(prompts)
	sims := make([][]float32, n)
	for i := 0; i < n; i++ {
		row := make([]float32, t)
		for j := 0; j < t; j++ {
			var sum float32
			for _, p := range prompts[j] {
				sum += Dot(images[i], p)
			}
			if len(prompts[j]) > 0 {
				row[j] = sum / float32(len(prompts[j]))
			}
		}
		sims[i] = row
	}
	return sims
}

// PairSoftmaxPositive scores each image against a (positive, negative)
// prompt pair: softmax over the two cosine similarities, returning the
// positive-class probability per image. This is the CLIP-IQA primitive.
func PairSoftmaxPositive(images [][]float32, pair [2][]float32) []float32 {
	out := make([]float32, len(images))
	for i, img := range images {
		pos := float64(Dot(img, pair[0]))
		neg := float64(Dot(img, pair[1]))
		// Stable two-class softmax.
		m := math.Max(pos, neg)
		ep := math.Exp(pos - m)
		en := math.Exp(neg - m)
		out[i] = float32(ep / (ep + en))
	}
	return out
}

// CosineDistanceMatrix builds the pairwise distance matrix 1 − X·Xᵀ over
// unit rows, clamped to be non-negative. Running it twice on the same
// pre-normalized input yields bit-equal matrices.
func CosineDistanceMatrix(rows [][]float32) [][]float32 {
	n := len(rows)
	dist := make([][]float32, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := 1 - Dot(rows[i], rows[j])
			if d < 0 {
				d = 0
			}
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// TopK returns the indices of the k largest values in row, in descending
// value order. Ties are broken by the lower index first, so results are
// stable across runs. k larger than len(row) is truncated.
func TopK(row []float32, k int) []int {
	if k > len(row) {
		k = len(row)
	}
	picked := make([]int, 0, k)
	used := make([]bool, len(row))
	for len(picked) < k {
		best := -1
		for i, v := range row {
			if used[i] {
				continue
			}
			if best == -1 || v > row[best] {
				best = i
			}
		}
		if best == -1 {
			break
		}
		used[best] = true
		picked = append(picked, best)
	}
	return picked
}
