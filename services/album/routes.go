// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package album

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the gateway endpoints with the router.
//
// Description:
//
//	All album operations are POSTs that answer 201 on success; failures are
//	reported with the application status code in both the HTTP status line
//	and the body message.
//
// Endpoints:
//
//	POST /api/albums/embedding  - Embed and cache a batch
//	POST /api/albums/categories - Cluster a batch into category buckets
//	POST /api/albums/duplicates - Group near-duplicate images
//	POST /api/albums/quality    - Find low-quality images
//	POST /api/albums/score      - Score images per category
//	POST /api/albums/people     - Group images by person
//
//	GET  /health/info - Health check
//	GET  /metrics     - Prometheus metrics
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	albums := router.Group("/api/albums")
	{
		albums.POST("/embedding", handlers.HandleEmbedding)
		albums.POST("/categories", handlers.HandleCategory)
		albums.POST("/duplicates", handlers.HandleDuplicate)
		albums.POST("/quality", handlers.HandleQuality)
		albums.POST("/score", handlers.HandleScore)
		albums.POST("/people", handlers.HandlePeople)
	}

	router.GET("/health/info", handlers.HandleHealthInfo)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
