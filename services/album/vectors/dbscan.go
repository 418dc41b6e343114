// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectors

// Noise is the DBSCAN label for points that belong to no cluster.
const Noise = -1

// DBSCAN clusters points over a precomputed distance matrix.
//
// # Description
//
// Standard density-based clustering: a point with at least minSamples
// neighbors within eps (itself included) is a core point; clusters grow by
// expanding core points' neighborhoods. Border points join the first cluster
// that reaches them; unreachable points stay labeled Noise.
//
// Labels are assigned in scan order starting at 0, so cluster ids follow the
// first-seen order of the input — callers that group by label in ascending
// order get clusters ordered by their earliest member.
//
// # Inputs
//
//   - dist: symmetric [N][N] distance matrix.
//   - eps: neighborhood radius (inclusive).
//   - minSamples: minimum neighborhood size for a core point, self included.
//
// # Outputs
//
//   - []int: per-point cluster label, Noise (-1) for outliers.
func DBSCAN(dist [][]float32, eps float32, minSamples int) []int {
	n := len(dist)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	visited := make([]bool, n)

	neighborhood := func(i int) []int {
		var nb []int
		for j := 0; j < n; j++ {
			if dist[i][j] <= eps {
				nb = append(nb, j)
			}
		}
		return nb
	}

	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		seeds := neighborhood(i)
		if len(seeds) < minSamples {
			continue
		}

		label := next
		next++
		labels[i] = label

		// Expand the cluster breadth-first over core points.
		for cursor := 0; cursor < len(seeds); cursor++ {
			j := seeds[cursor]
			if labels[j] == Noise {
				labels[j] = label
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			nb := neighborhood(j)
			if len(nb) >= minSamples {
				seeds = append(seeds, nb...)
			}
		}
	}
	return labels
}

// GroupByLabel maps DBSCAN labels back onto names, excluding noise.
// Clusters appear in first-seen label order; within a cluster, names keep
// their input order.
func GroupByLabel(labels []int, names []string) [][]string {
	var order []int
	groups := make(map[int][]string)
	for i, label := range labels {
		if label == Noise {
			continue
		}
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], names[i])
	}
	out := make([][]string, 0, len(order))
	for _, label := range order {
		out = append(out, groups[label])
	}
	return out
}
