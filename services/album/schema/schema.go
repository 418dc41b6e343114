// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema defines the request and response DTOs shared by the HTTP
// and Kafka ingress surfaces.
//
// Response bodies collapse to a single data field whose shape depends on the
// operation and status code:
//
//	embedding 201 → nil (or []string of refs the GPU omitted)
//	category  201 → []CategoryCluster
//	duplicate 201 → [][]string
//	quality   201 → []string (low-quality refs)
//	score     201 → []ScoreCategory
//	people    201 → []PeopleCluster
//	any vector op 428 → []string (missing refs, input order)
package schema

import "github.com/AleutianAI/albumgateway/services/album/status"

// ImageRequest carries a batch of image references. An image reference is an
// opaque string that is simultaneously the object-storage key and the
// embedding cache key.
type ImageRequest struct {
	Images []string `json:"images" binding:"required,min=1"`
}

// ImageConceptRequest extends ImageRequest with the concepts whose category
// vectors are unioned into the parent bank for classification.
type ImageConceptRequest struct {
	Images   []string `json:"images" binding:"required,min=1"`
	Concepts []string `json:"concepts"`
}

// ScoreCategoryRequest is one category bucket of a highlight-score request.
type ScoreCategoryRequest struct {
	Category string   `json:"category" binding:"required"`
	Images   []string `json:"images" binding:"required,min=1"`
}

// CategoryScoreRequest carries the per-category image lists to score.
type CategoryScoreRequest struct {
	Categories []ScoreCategoryRequest `json:"categories" binding:"required,min=1,dive"`
}

// CategoryCluster is one bucket of the category pipeline's output. The
// sentinel category "기타" collects images no representative tag matched.
type CategoryCluster struct {
	Category string   `json:"category"`
	Images   []string `json:"images"`
}

// ScoreImage is a single image's aesthetic score.
type ScoreImage struct {
	Image string  `json:"image"`
	Score float64 `json:"score"`
}

// ScoreCategory is one category bucket of the highlight-score output,
// preserving the request's image order.
type ScoreCategory struct {
	Category string       `json:"category"`
	Images   []ScoreImage `json:"images"`
}

// RepresentativeFace identifies the face crop chosen to represent a people
// cluster, as reported by the GPU service.
type RepresentativeFace struct {
	Image string    `json:"image"`
	BBox  []float64 `json:"bbox"`
}

// PeopleCluster is one person grouping from the GPU people-clustering
// service. The gateway passes it through without post-processing.
type PeopleCluster struct {
	Images             []string           `json:"images"`
	RepresentativeFace RepresentativeFace `json:"representative_face"`
}

// Body is the response body shared by both surfaces: the status table's
// message plus the operation-and-status dependent data payload.
type Body struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// NewBody builds a Body whose message matches the status table entry for
// code. Data may be nil.
func NewBody(code int, data any) Body {
	return Body{Message: status.Message(code), Data: data}
}

// Envelope is the Kafka response value: request correlation metadata, the
// status code, and the body. Keys mirror the request JSON casing.
type Envelope struct {
	TaskID     string `json:"taskId"`
	AlbumID    int64  `json:"albumId"`
	StatusCode int    `json:"statusCode"`
	Body       Body   `json:"body"`
}
