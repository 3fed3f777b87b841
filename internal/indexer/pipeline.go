package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"kbagent/internal/contextutil"
	"kbagent/internal/embedding"
	"kbagent/internal/lexical"
	"kbagent/internal/storage"
	"kbagent/internal/vectorstore"
)

// Pipeline orchestrates indexing of documents into SQLite and the vector
// store: normalize, chunk, embed, vectorize, persist.
type Pipeline struct {
	agents      storage.AgentStore
	documents   storage.DocumentStore
	chunks      storage.ChunkStore
	embedder    embedding.Provider
	vectorStore vectorstore.VectorStore
	collection  string
	chunker     *Chunker
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(
	agents storage.AgentStore,
	documents storage.DocumentStore,
	chunks storage.ChunkStore,
	embedder embedding.Provider,
	vectorStore vectorstore.VectorStore,
	collection string,
	chunker *Chunker,
) *Pipeline {
	if chunker == nil {
		chunker = NewChunker(0, 0)
	}
	return &Pipeline{
		agents:      agents,
		documents:   documents,
		chunks:      chunks,
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		chunker:     chunker,
	}
}

// IndexResult summarizes one document indexing run.
type IndexResult struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	Chunks      int    `json:"chunks"`
	TotalTokens int    `json:"total_tokens"`
	Unchanged   bool   `json:"unchanged"`
}

// IndexDocument indexes one document for an agent. Unchanged content (by
// SHA256) is skipped. Re-indexing replaces all previous chunks; the batch
// either embeds completely or the document is left as it was.
func (p *Pipeline) IndexDocument(ctx context.Context, agentID, filename string, content []byte) (*IndexResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if agentID == "" {
		return nil, fmt.Errorf("agent ID is required")
	}
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	if err := p.agents.Ensure(ctx, agentID, ""); err != nil {
		return nil, fmt.Errorf("failed to ensure agent: %w", err)
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := p.documents.GetByAgentAndFilename(ctx, agentID, filename)
	if err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("failed to check existing document: %w", err)
	}

	if existing != nil && existing.Hash == hash {
		logger.DebugContext(ctx, "skipping unchanged document", "agent_id", agentID, "filename", filename, "hash", hash)
		return &IndexResult{DocumentID: existing.ID, Title: existing.Title, Unchanged: true}, nil
	}

	title := ExtractTitle(content, filename)
	chunks := p.chunker.Split(string(content))

	doc := &storage.DocumentRecord{
		AgentID:  agentID,
		Filename: filename,
		Title:    title,
		Hash:     hash,
	}
	if existing != nil {
		doc.ID = existing.ID
	}
	if err := p.documents.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to upsert document: %w", err)
	}

	if existing != nil {
		oldIDs, err := p.chunks.ListIDsByDocument(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list old chunk IDs: %w", err)
		}
		if len(oldIDs) > 0 {
			// New chunks overwrite by ID anyway, so a failed vector delete
			// only leaves orphan points behind.
			if err := p.vectorStore.Delete(ctx, p.collection, oldIDs); err != nil {
				logger.WarnContext(ctx, "failed to delete old vectors", "error", err, "count", len(oldIDs))
			}
			if err := p.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
				return nil, fmt.Errorf("failed to delete old chunks: %w", err)
			}
		}
	}

	result := &IndexResult{DocumentID: doc.ID, Title: title}
	if len(chunks) == 0 {
		logger.WarnContext(ctx, "document produced no chunks", "agent_id", agentID, "filename", filename)
		return result, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	batch, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(batch.Vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(batch.Vectors))
	}

	records := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		chunkID := uuid.New().String()
		records[i] = &storage.ChunkRecord{
			ID:         chunkID,
			DocumentID: doc.ID,
			ChunkIndex: chunk.Index,
			TokenCount: chunk.TokenCount,
			Content:    chunk.Content,
			Embedding:  batch.Vectors[i],
			Lexical:    map[string]float64(lexical.BuildVector(chunk.Content)),
			Provider:   batch.Provider,
			Model:      batch.Model,
		}
		points[i] = vectorstore.Point{
			ID:  chunkID,
			Vec: batch.Vectors[i],
			Meta: map[string]any{
				"agent_id":    agentID,
				"document_id": doc.ID,
				"filename":    filename,
				"title":       title,
				"chunk_index": chunk.Index,
			},
		}
		result.TotalTokens += chunk.TokenCount
	}

	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
		return nil, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	result.Chunks = len(chunks)
	logger.InfoContext(ctx, "indexed document", "agent_id", agentID, "filename", filename, "chunks", len(chunks), "title", title)
	return result, nil
}

// RemoveDocument deletes a document and all its chunks from both stores.
func (p *Pipeline) RemoveDocument(ctx context.Context, documentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	doc, err := p.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	ids, err := p.chunks.ListIDsByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list chunk IDs: %w", err)
	}
	if len(ids) > 0 {
		if err := p.vectorStore.Delete(ctx, p.collection, ids); err != nil {
			logger.WarnContext(ctx, "failed to delete vectors", "error", err, "count", len(ids))
		}
	}

	if err := p.documents.Delete(ctx, documentID); err != nil {
		return err
	}

	logger.InfoContext(ctx, "removed document", "agent_id", doc.AgentID, "filename", doc.Filename, "chunks", len(ids))
	return nil
}
