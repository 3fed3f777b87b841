package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"kbagent/internal/indexer"
	"kbagent/internal/storage"
	storage_mocks "kbagent/internal/storage/mocks"
)

// mockIndexer is a hand-rolled DocumentIndexer fake.
type mockIndexer struct {
	result    *indexer.IndexResult
	indexErr  error
	removeErr error
	stats     *indexer.CoverageStats

	gotAgentID  string
	gotFilename string
	gotContent  []byte
	gotRemoved  string
}

func (m *mockIndexer) IndexDocument(_ context.Context, agentID, filename string, content []byte) (*indexer.IndexResult, error) {
	m.gotAgentID = agentID
	m.gotFilename = filename
	m.gotContent = content
	if m.indexErr != nil {
		return nil, m.indexErr
	}
	return m.result, nil
}

func (m *mockIndexer) RemoveDocument(_ context.Context, documentID string) error {
	m.gotRemoved = documentID
	return m.removeErr
}

func (m *mockIndexer) CoverageStats(_ context.Context, _ string) (*indexer.CoverageStats, error) {
	return m.stats, nil
}

func TestDocumentsHandler_Upload(t *testing.T) {
	pipeline := &mockIndexer{result: &indexer.IndexResult{
		DocumentID:  "doc-1",
		Title:       "Guia de Nomina",
		Chunks:      3,
		TotalTokens: 410,
	}}
	handler := NewDocumentsHandler(pipeline, nil, "test-model")

	body, _ := json.Marshal(UploadRequest{
		AgentID:  "agent-1",
		Filename: "nomina.md",
		Content:  "# Guia de Nomina\n\nLa nomina se cobra el dia 28.",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var result indexer.IndexResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.DocumentID != "doc-1" || result.Chunks != 3 {
		t.Errorf("result = %+v", result)
	}

	if pipeline.gotAgentID != "agent-1" || pipeline.gotFilename != "nomina.md" {
		t.Errorf("pipeline call = (%q, %q)", pipeline.gotAgentID, pipeline.gotFilename)
	}
	if len(pipeline.gotContent) == 0 {
		t.Error("content not passed to pipeline")
	}
}

func TestDocumentsHandler_UploadValidation(t *testing.T) {
	handler := NewDocumentsHandler(&mockIndexer{}, nil, "m")

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"missing agent", UploadRequest{Filename: "a.md", Content: "x"}},
		{"missing filename", UploadRequest{AgentID: "agent-1", Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.req)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
			w := httptest.NewRecorder()

			handler.Upload(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestDocumentsHandler_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDocs := storage_mocks.NewMockDocumentStore(ctrl)
	mockDocs.EXPECT().
		ListByAgent(gomock.Any(), "agent-1").
		Return([]*storage.DocumentRecord{
			{ID: "doc-1", AgentID: "agent-1", Filename: "nomina.md", Title: "Guia de Nomina", UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
			{ID: "doc-2", AgentID: "agent-1", Filename: "vacaciones.md", Title: "Vacaciones", UpdatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		}, nil)

	handler := NewDocumentsHandler(&mockIndexer{}, mockDocs, "m")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?agent_id=agent-1", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var docs []DocumentResponse
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}
	if docs[0].Filename != "nomina.md" || docs[0].UpdatedAt != "2024-03-01T10:00:00Z" {
		t.Errorf("document = %+v", docs[0])
	}
}

func TestDocumentsHandler_ListRequiresAgent(t *testing.T) {
	handler := NewDocumentsHandler(&mockIndexer{}, nil, "m")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDocumentsHandler_Delete(t *testing.T) {
	pipeline := &mockIndexer{}
	handler := NewDocumentsHandler(pipeline, nil, "m")

	router := chi.NewRouter()
	router.Delete("/api/v1/documents/{id}", handler.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if pipeline.gotRemoved != "doc-1" {
		t.Errorf("removed document = %q", pipeline.gotRemoved)
	}
}

func TestDocumentsHandler_DeleteNotFound(t *testing.T) {
	pipeline := &mockIndexer{removeErr: fmt.Errorf("loading document: %w", storage.ErrNotFound)}
	handler := NewDocumentsHandler(pipeline, nil, "m")

	router := chi.NewRouter()
	router.Delete("/api/v1/documents/{id}", handler.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDocumentsHandler_Stats(t *testing.T) {
	pipeline := &mockIndexer{stats: &indexer.CoverageStats{
		DocsProcessed: 4,
		ChunksStored:  12,
	}}
	handler := NewDocumentsHandler(pipeline, nil, "m")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/stats", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var stats indexer.CoverageStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.DocsProcessed != 4 || stats.ChunksStored != 12 {
		t.Errorf("stats = %+v", stats)
	}
}
