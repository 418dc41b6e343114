// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package features loads the process-wide, read-only model artifacts: the
// category and quality text-feature banks and the aesthetic regressor.
//
// All three are loaded once at startup, never mutated afterwards, and are
// therefore safe for concurrent use without locking.
package features

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/AleutianAI/albumgateway/services/album/vectors"
)

// PromptsPerTag is the number of text prompt vectors every category carries.
const PromptsPerTag = 4

// CategoryBank holds the parent category list plus per-concept overrides.
// An image is classified against the union of the parents and the
// categories of the concepts named in its request.
type CategoryBank struct {
	ParentCategories  []string
	ParentEmbeds      [][][]float32 // [T][PromptsPerTag][D]
	ConceptCategories map[string][]string
	ConceptEmbeds     map[string][][][]float32
}

// Refine returns the effective category list and prompt bank for a request:
// the parents followed by each requested concept's additions, in request
// order. Unknown concepts contribute nothing.
func (b *CategoryBank) Refine(concepts []string) ([]string, [][][]float32) {
	categories := make([]string, len(b.ParentCategories))
	copy(categories, b.ParentCategories)
	embeds := make([][][]float32, len(b.ParentEmbeds))
	copy(embeds, b.ParentEmbeds)

	for _, concept := range concepts {
		categories = append(categories, b.ConceptCategories[concept]...)
		embeds = append(embeds, b.ConceptEmbeds[concept]...)
	}
	return categories, embeds
}

// QualityBank holds one (positive, negative) prompt pair per quality field.
type QualityBank struct {
	Fields []string
	Pairs  [][2][]float32 // [N][2][D]
}

// PairFor returns the prompt pair for a named field.
func (b *QualityBank) PairFor(field string) ([2][]float32, bool) {
	for i, f := range b.Fields {
		if f == field {
			return b.Pairs[i], true
		}
	}
	return [2][]float32{}, false
}

// Regressor is the aesthetic scoring head: a single linear layer D → 1.
type Regressor struct {
	Weight []float32
	Bias   float32
}

// Scores applies the regressor to a batch of embeddings. Pure function;
// rows are expected to be unit-normalized by the caller.
func (r *Regressor) Scores(rows [][]float32) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = float64(vectors.Dot(row, r.Weight) + r.Bias)
	}
	return out
}

type categoryBlob struct {
	ParentCategories []string                 `json:"parent_categories"`
	ParentEmbeds     [][][]float32            `json:"parent_embeds"`
	EmbedDict        map[string][][][]float32 `json:"embed_dict"`
	CategoryDict     map[string][]string      `json:"category_dict"`
}

type qualityBlob struct {
	TextFeatures [][2][]float32 `json:"text_features"`
	Fields       []string       `json:"fields"`
}

type regressorBlob struct {
	Weight []float32 `json:"weight"`
	Bias   float32   `json:"bias"`
}

// LoadCategoryBank reads the category feature blob and validates that every
// tag carries PromptsPerTag vectors of dimension dim.
func LoadCategoryBank(path string, dim int) (*CategoryBank, error) {
	var blob categoryBlob
	if err := loadBlob(path, &blob); err != nil {
		return nil, fmt.Errorf("category bank: %w", err)
	}
	if len(blob.ParentCategories) != len(blob.ParentEmbeds) {
		return nil, fmt.Errorf("category bank: %d categories but %d embed rows",
			len(blob.ParentCategories), len(blob.ParentEmbeds))
	}
	if err := checkPrompts(blob.ParentEmbeds, dim); err != nil {
		return nil, fmt.Errorf("category bank parents: %w", err)
	}
	for concept, embeds := range blob.EmbedDict {
		if len(blob.CategoryDict[concept]) != len(embeds) {
			return nil, fmt.Errorf("category bank concept %q: category/embed count mismatch", concept)
		}
		if err := checkPrompts(embeds, dim); err != nil {
			return nil, fmt.Errorf("category bank concept %q: %w", concept, err)
		}
	}
	return &CategoryBank{
		ParentCategories:  blob.ParentCategories,
		ParentEmbeds:      blob.ParentEmbeds,
		ConceptCategories: blob.CategoryDict,
		ConceptEmbeds:     blob.EmbedDict,
	}, nil
}

// LoadQualityBank reads the quality feature blob. The bank must contain the
// "sharp" and "good" fields the dual-threshold filter scores against.
func LoadQualityBank(path string, dim int) (*QualityBank, error) {
	var blob qualityBlob
	if err := loadBlob(path, &blob); err != nil {
		return nil, fmt.Errorf("quality bank: %w", err)
	}
	if len(blob.Fields) != len(blob.TextFeatures) {
		return nil, fmt.Errorf("quality bank: %d fields but %d feature rows",
			len(blob.Fields), len(blob.TextFeatures))
	}
	for i, pair := range blob.TextFeatures {
		if len(pair[0]) != dim || len(pair[1]) != dim {
			return nil, fmt.Errorf("quality bank field %q: prompt dimension != %d", blob.Fields[i], dim)
		}
	}
	bank := &QualityBank{Fields: blob.Fields, Pairs: blob.TextFeatures}
	for _, required := range []string{"sharp", "good"} {
		if _, ok := bank.PairFor(required); !ok {
			return nil, fmt.Errorf("quality bank: required field %q missing", required)
		}
	}
	return bank, nil
}

// LoadRegressor reads the aesthetic regressor weights.
func LoadRegressor(path string, dim int) (*Regressor, error) {
	var blob regressorBlob
	if err := loadBlob(path, &blob); err != nil {
		return nil, fmt.Errorf("aesthetic regressor: %w", err)
	}
	if len(blob.Weight) != dim {
		return nil, fmt.Errorf("aesthetic regressor: weight dimension %d, want %d", len(blob.Weight), dim)
	}
	return &Regressor{Weight: blob.Weight, Bias: blob.Bias}, nil
}

func loadBlob(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func checkPrompts(embeds [][][]float32, dim int) error {
	for i, prompts := range embeds {
		if len(prompts) != PromptsPerTag {
			return fmt.Errorf("tag %d has %d prompts, want %d", i, len(prompts), PromptsPerTag)
		}
		for _, p := range prompts {
			if len(p) != dim {
				return fmt.Errorf("tag %d prompt dimension %d, want %d", i, len(p), dim)
			}
		}
	}
	return nil
}
