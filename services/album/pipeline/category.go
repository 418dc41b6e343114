// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sort"

	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
	"github.com/AleutianAI/albumgateway/services/album/vectors"
)

const (
	// Tags considered per image.
	categoryTopK = 3
	// Confidence threshold above which a tag score earns its bonus.
	categoryTau float32 = 0.28
	// Bonus weight in the representativeness score.
	categoryLambda = 0.5
	// Representative tags kept for the whole batch.
	categoryRepCount = 5
	// Minimum tag score for an image to join a bucket.
	categoryAssignThreshold float32 = 0.21
	// Scores at or below this are eligible for tag boosting.
	categoryBoostThreshold float32 = 0.22

	// FallbackCategory collects images no representative tag matched.
	FallbackCategory = "기타"
)

// Category clusters a batch into category buckets.
//
// # Description
//
// Two-pass classification over prompt-averaged CLIP similarities. The first
// pass picks the batch's five most representative tags and assigns each
// image to the first of its top-3 tags that is representative and scores at
// least the assignment threshold. The second pass recomputes each bucket's
// own representative tag from its members and reclassifies members whose
// bucket label moved; images that no longer fit land in the fallback bucket.
//
// Buckets keep first-assignment order and empty buckets are omitted.
func (p *Pipelines) Category(ctx context.Context, req schema.ImageConceptRequest) (code int, body schema.Body) {
	defer p.guard("category", &code, &body)

	if len(req.Images) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	rows, missing := p.fetchNormalized(ctx, req.Images)
	if len(missing) > 0 {
		return status.EmbeddingRequired, schema.NewBody(status.EmbeddingRequired, missing)
	}

	categories, prompts := p.deps.Category.Refine(req.Concepts)

	var clusters []schema.CategoryCluster
	if err := p.deps.Gate.Do(ctx, func() {
		clusters = categorize(rows, req.Images, prompts, categories, p.deps.TagBoosts)
	}); err != nil {
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	return status.Success, schema.NewBody(status.Success, clusters)
}

// tagScore is one (tag, similarity) entry of an image's top-k list.
type tagScore struct {
	tag   string
	score float32
}

// buckets is an insertion-ordered map from category to member image indices.
type buckets struct {
	order   []string
	members map[string][]int
}

func newBuckets() *buckets {
	return &buckets{members: make(map[string][]int)}
}

func (b *buckets) add(tag string, idx int) {
	if _, ok := b.members[tag]; !ok {
		b.order = append(b.order, tag)
	}
	b.members[tag] = append(b.members[tag], idx)
}

func categorize(rows [][]float32, names []string, prompts [][][]float32, categories []string, boosts map[string]float32) []schema.CategoryCluster {
	sims := vectors.SimilarityMeanPrompts(rows, prompts)
	applyTagBoosts(sims, categories, boosts)

	// Top-k tags per image.
	topk := make([][]tagScore, len(rows))
	for n, row := range sims {
		idx := vectors.TopK(row, categoryTopK)
		entries := make([]tagScore, len(idx))
		for i, t := range idx {
			entries[i] = tagScore{tag: categories[t], score: row[t]}
		}
		topk[n] = entries
	}

	// Batch-wide representative tags.
	repTags := topRepresentatives(representativeScores(topk, categories), categories, categoryRepCount)
	repSet := make(map[string]bool, len(repTags))
	for _, tag := range repTags {
		repSet[tag] = true
	}

	// First pass: first representative top-k tag above the threshold wins.
	first := newBuckets()
	for i, entries := range topk {
		assigned := false
		for _, e := range entries {
			if repSet[e.tag] && e.score >= categoryAssignThreshold {
				first.add(e.tag, i)
				assigned = true
				break
			}
		}
		if !assigned {
			first.add(FallbackCategory, i)
		}
	}

	// Each bucket's own representative tag, from its members only.
	bucketRep := make(map[string]string)
	for _, category := range first.order {
		if category == FallbackCategory {
			continue
		}
		memberTopk := make([][]tagScore, 0, len(first.members[category]))
		for _, i := range first.members[category] {
			memberTopk = append(memberTopk, topk[i])
		}
		bucketRep[category] = topRepresentatives(representativeScores(memberTopk, categories), categories, 1)[0]
	}

	// Second pass: follow moved labels, drop members that no longer fit.
	final := newBuckets()
	for _, category := range first.order {
		indices := first.members[category]
		if category == FallbackCategory {
			for _, i := range indices {
				final.add(FallbackCategory, i)
			}
			continue
		}
		rep := bucketRep[category]
		if rep == category {
			for _, i := range indices {
				final.add(category, i)
			}
			continue
		}
		for _, i := range indices {
			moved := false
			for _, e := range topk[i] {
				if e.tag == rep && e.score >= categoryAssignThreshold {
					final.add(rep, i)
					moved = true
					break
				}
			}
			if !moved {
				final.add(FallbackCategory, i)
			}
		}
	}

	clusters := make([]schema.CategoryCluster, 0, len(final.order))
	for _, category := range final.order {
		indices := final.members[category]
		if len(indices) == 0 {
			continue
		}
		images := make([]string, len(indices))
		for j, i := range indices {
			images[j] = names[i]
		}
		clusters = append(clusters, schema.CategoryCluster{Category: category, Images: images})
	}
	return clusters
}

// applyTagBoosts scales low-confidence scores of boosted tags in place.
func applyTagBoosts(sims [][]float32, categories []string, boosts map[string]float32) {
	if len(boosts) == 0 {
		return
	}
	for t, tag := range categories {
		boost, ok := boosts[tag]
		if !ok {
			continue
		}
		for n := range sims {
			if sims[n][t] <= categoryBoostThreshold {
				sims[n][t] *= boost
			}
		}
	}
}

// representativeScores sums each tag's top-k appearances across the given
// images, with a bonus for confident appearances:
//
//	rep[t] = Σ score + λ · Σ score·[score > τ]
func representativeScores(topk [][]tagScore, categories []string) []float64 {
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c] = i
	}
	scores := make([]float64, len(categories))
	for _, entries := range topk {
		for _, e := range entries {
			t := index[e.tag]
			scores[t] += float64(e.score)
			if e.score > categoryTau {
				scores[t] += categoryLambda * float64(e.score)
			}
		}
	}
	return scores
}

// topRepresentatives returns the k highest-scoring categories; ties keep the
// original category order.
func topRepresentatives(scores []float64, categories []string, k int) []string {
	idx := make([]int, len(categories))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = categories[idx[i]]
	}
	return out
}
