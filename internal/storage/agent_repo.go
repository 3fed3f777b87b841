package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// AgentStore defines the interface for agent storage operations.
type AgentStore interface {
	// Ensure creates the agent if it does not exist yet. Existing agents are
	// left untouched so repeated uploads stay idempotent.
	Ensure(ctx context.Context, id, name string) error
	// GetByID gets an agent by ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*AgentRecord, error)
	// List returns all agents ordered by creation time.
	List(ctx context.Context) ([]*AgentRecord, error)
}

// AgentRepo provides methods for agent operations.
// It implements the AgentStore interface.
type AgentRepo struct {
	db *sql.DB
}

// NewAgentRepo creates a new AgentRepo.
func NewAgentRepo(db *sql.DB) *AgentRepo {
	return &AgentRepo{db: db}
}

// Ensure creates the agent if it does not exist yet.
func (r *AgentRepo) Ensure(ctx context.Context, id, name string) error {
	if name == "" {
		name = id
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO agents (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING",
		id, name,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure agent: %w", err)
	}
	return nil
}

// GetByID gets an agent by ID. Returns ErrNotFound if not found.
func (r *AgentRepo) GetByID(ctx context.Context, id string) (*AgentRecord, error) {
	var agent AgentRecord
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM agents WHERE id = ?",
		id,
	).Scan(&agent.ID, &agent.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	if agent.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &agent, nil
}

// List returns all agents ordered by creation time.
func (r *AgentRepo) List(ctx context.Context) ([]*AgentRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, created_at FROM agents ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var agents []*AgentRecord
	for rows.Next() {
		var agent AgentRecord
		var createdAt string
		if err := rows.Scan(&agent.ID, &agent.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if agent.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return agents, nil
}
