package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kbagent/internal/contextutil"
	"kbagent/internal/indexer"
	"kbagent/internal/storage"
)

// DocumentIndexer is the slice of the indexing pipeline the document
// endpoints consume.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, agentID, filename string, content []byte) (*indexer.IndexResult, error)
	RemoveDocument(ctx context.Context, documentID string) error
	CoverageStats(ctx context.Context, embeddingModel string) (*indexer.CoverageStats, error)
}

// DocumentsHandler handles document upload, listing, and deletion.
type DocumentsHandler struct {
	pipeline       DocumentIndexer
	documents      storage.DocumentStore
	embeddingModel string
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(pipeline DocumentIndexer, documents storage.DocumentStore, embeddingModel string) *DocumentsHandler {
	return &DocumentsHandler{
		pipeline:       pipeline,
		documents:      documents,
		embeddingModel: embeddingModel,
	}
}

// UploadRequest represents the HTTP request payload for document uploads.
type UploadRequest struct {
	AgentID  string `json:"agent_id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// DocumentResponse represents one document in listings.
type DocumentResponse struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Filename  string `json:"filename"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// Upload indexes an uploaded document: chunk, embed, and store. Re-uploads
// with unchanged content are skipped.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	result, err := h.pipeline.IndexDocument(ctx, req.AgentID, req.Filename, []byte(req.Content))
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to index document")
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}

// List returns an agent's documents.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	docs, err := h.documents.ListByAgent(ctx, agentID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list documents", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	responses := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		responses = append(responses, DocumentResponse{
			ID:        doc.ID,
			AgentID:   doc.AgentID,
			Filename:  doc.Filename,
			Title:     doc.Title,
			UpdatedAt: doc.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(ctx, w, http.StatusOK, responses)
}

// Delete removes a document, its chunks, and its vector points.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	if err := h.pipeline.RemoveDocument(ctx, documentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		logger.ErrorContext(ctx, "failed to remove document", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to remove document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats returns indexing coverage statistics across all documents.
func (h *DocumentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := h.pipeline.CoverageStats(ctx, h.embeddingModel)
	if err != nil {
		logger.ErrorContext(ctx, "failed to compute coverage stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	writeJSON(ctx, w, http.StatusOK, stats)
}
