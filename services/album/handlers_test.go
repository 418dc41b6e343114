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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
)

type fakeService struct {
	embeddingCode int
	lastConcepts  []string
}

func (f *fakeService) Embedding(_ context.Context, req schema.ImageRequest) (int, schema.Body) {
	code := f.embeddingCode
	if code == 0 {
		code = status.Success
	}
	return code, schema.NewBody(code, nil)
}

func (f *fakeService) Duplicate(_ context.Context, req schema.ImageRequest) (int, schema.Body) {
	return status.Success, schema.NewBody(status.Success, [][]string{req.Images})
}

func (f *fakeService) Quality(_ context.Context, _ schema.ImageRequest) (int, schema.Body) {
	return status.EmbeddingRequired, schema.NewBody(status.EmbeddingRequired, []string{"a.jpg"})
}

func (f *fakeService) Category(_ context.Context, req schema.ImageConceptRequest) (int, schema.Body) {
	f.lastConcepts = req.Concepts
	return status.Success, schema.NewBody(status.Success, []schema.CategoryCluster{})
}

func (f *fakeService) Score(_ context.Context, _ schema.CategoryScoreRequest) (int, schema.Body) {
	return status.Success, schema.NewBody(status.Success, []schema.ScoreCategory{})
}

func (f *fakeService) People(_ context.Context, _ schema.ImageRequest) (int, schema.Body) {
	return status.Success, schema.NewBody(status.Success, []schema.PeopleCluster{})
}

func newTestRouter(service Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, NewHandlers(service, nil))
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleEmbedding_Success(t *testing.T) {
	router := newTestRouter(&fakeService{})

	w := post(router, "/api/albums/embedding", `{"images":["a.jpg"]}`)
	if w.Code != status.Success {
		t.Fatalf("code = %d, want 201", w.Code)
	}
	var body schema.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "success" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestHandleEmbedding_BindingFailure(t *testing.T) {
	router := newTestRouter(&fakeService{})

	cases := []string{
		`{"images":[]}`,
		`{}`,
		`not json`,
	}
	for _, body := range cases {
		w := post(router, "/api/albums/embedding", body)
		if w.Code != status.InvalidRequest {
			t.Errorf("body %q: code = %d, want 400", body, w.Code)
		}
		var resp schema.Body
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Message != "invalid_request" {
			t.Errorf("body %q: message = %q", body, resp.Message)
		}
	}
}

func TestHandleQuality_PropagatesPipelineStatus(t *testing.T) {
	router := newTestRouter(&fakeService{})

	w := post(router, "/api/albums/quality", `{"images":["a.jpg"]}`)
	if w.Code != status.EmbeddingRequired {
		t.Fatalf("code = %d, want 428", w.Code)
	}
	var body schema.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "embedding_required" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestHandleCategory_PassesConcepts(t *testing.T) {
	service := &fakeService{}
	router := newTestRouter(service)

	w := post(router, "/api/albums/categories", `{"images":["a.jpg"],"concepts":["pets"]}`)
	if w.Code != status.Success {
		t.Fatalf("code = %d, want 201", w.Code)
	}
	if len(service.lastConcepts) != 1 || service.lastConcepts[0] != "pets" {
		t.Errorf("concepts = %v", service.lastConcepts)
	}
}

func TestHandleScore_RequiresCategories(t *testing.T) {
	router := newTestRouter(&fakeService{})

	if w := post(router, "/api/albums/score", `{"categories":[]}`); w.Code != status.InvalidRequest {
		t.Errorf("empty categories code = %d, want 400", w.Code)
	}
	ok := post(router, "/api/albums/score", `{"categories":[{"category":"c","images":["a.jpg"]}]}`)
	if ok.Code != status.Success {
		t.Errorf("code = %d, want 201", ok.Code)
	}
}

func TestHealthInfo(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/health/info", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["message"] != "Service is healthy" || body["version"] != Version {
		t.Errorf("body = %v", body)
	}
}
