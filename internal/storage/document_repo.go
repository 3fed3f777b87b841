package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks kbagent/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByAgentAndFilename gets a document by agent ID and filename.
	// Returns nil and ErrNotFound if not found.
	GetByAgentAndFilename(ctx context.Context, agentID, filename string) (*DocumentRecord, error)
	// GetByID gets a document by ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// Upsert inserts a new document or updates an existing one.
	Upsert(ctx context.Context, doc *DocumentRecord) error
	// Delete removes a document; its chunks cascade.
	Delete(ctx context.Context, id string) error
	// ListByAgent returns all documents for an agent ordered by filename.
	ListByAgent(ctx context.Context, agentID string) ([]*DocumentRecord, error)
	// Count returns the total number of documents.
	Count(ctx context.Context) (int, error)
	// CountWithoutChunks returns how many documents produced no chunks.
	CountWithoutChunks(ctx context.Context) (int, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// GetByAgentAndFilename gets a document by agent ID and filename.
// Returns nil and ErrNotFound if not found.
func (r *DocumentRepo) GetByAgentAndFilename(ctx context.Context, agentID, filename string) (*DocumentRecord, error) {
	return r.get(ctx,
		"SELECT id, agent_id, filename, title, hash, updated_at FROM documents WHERE agent_id = ? AND filename = ?",
		agentID, filename)
}

// GetByID gets a document by ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	return r.get(ctx,
		"SELECT id, agent_id, filename, title, hash, updated_at FROM documents WHERE id = ?",
		id)
}

func (r *DocumentRepo) get(ctx context.Context, query string, args ...any) (*DocumentRecord, error) {
	var doc DocumentRecord
	var updatedAt string
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&doc.ID, &doc.AgentID, &doc.Filename, &doc.Title, &doc.Hash, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Upsert inserts a new document or updates an existing one.
// If the document doesn't exist (by agent_id and filename), generates a new
// UUID. If it exists, updates title, updated_at, and hash while preserving
// the ID.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *DocumentRecord) error {
	existing, err := r.GetByAgentAndFilename(ctx, doc.AgentID, doc.Filename)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to check existing document: %w", err)
	}

	if existing != nil {
		doc.ID = existing.ID
	} else if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (id, agent_id, filename, title, hash, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (agent_id, filename) DO UPDATE SET
		 title = excluded.title, hash = excluded.hash, updated_at = CURRENT_TIMESTAMP`,
		doc.ID, doc.AgentID, doc.Filename, doc.Title, doc.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Delete removes a document; its chunks cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByAgent returns all documents for an agent ordered by filename.
func (r *DocumentRepo) ListByAgent(ctx context.Context, agentID string) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, agent_id, filename, title, hash, updated_at FROM documents WHERE agent_id = ? ORDER BY filename",
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []*DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		var updatedAt string
		if err := rows.Scan(&doc.ID, &doc.AgentID, &doc.Filename, &doc.Title, &doc.Hash, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// Count returns the total number of documents.
func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// CountWithoutChunks returns how many documents produced no chunks.
func (r *DocumentRepo) CountWithoutChunks(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents
		 WHERE id NOT IN (SELECT DISTINCT document_id FROM chunks)`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents without chunks: %w", err)
	}
	return count, nil
}
