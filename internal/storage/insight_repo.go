package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// queryer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same repo methods run standalone or inside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsightStore defines the interface for question insight persistence.
// Recording a question touches topics, clusters, events, and possibly
// ambiguities together, so writes go through InTx.
type InsightStore interface {
	// InTx runs fn against a store bound to a single transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(InsightStore) error) error
	// UpsertTopic bumps the question counter and the counter matching the
	// event's resolution, creating the topic on first use. Returns the
	// up-to-date record.
	UpsertTopic(ctx context.Context, agentID, topicKey, label, resolution string) (*TopicRecord, error)
	// RecentClusters returns the most recently asked clusters of a topic.
	RecentClusters(ctx context.Context, topicID int64, limit int) ([]*ClusterRecord, error)
	// CreateCluster inserts a new cluster and returns its ID.
	CreateCluster(ctx context.Context, cluster *ClusterRecord) (int64, error)
	// TouchCluster folds a new member into an existing cluster: bumps the
	// count and overwrites centroid and last-answer fields.
	TouchCluster(ctx context.Context, clusterID int64, centroid []float32, answer, mode string, confidence float64) error
	// InsertEvent records one question occurrence.
	InsertEvent(ctx context.Context, event *EventRecord) error
	// InsertAmbiguity records the alternatives of an ambiguous answer.
	InsertAmbiguity(ctx context.Context, amb *AmbiguityRecord) error
	// GetAmbiguity gets an ambiguity event by ID. Returns ErrNotFound if not found.
	GetAmbiguity(ctx context.Context, id string) (*AmbiguityRecord, error)
	// MarkAmbiguityResolved stores the user's pick on the ambiguity event.
	MarkAmbiguityResolved(ctx context.Context, id, selectedSourceID string) error
	// MarkEventAnswered flips a question event to the answered resolution.
	MarkEventAnswered(ctx context.Context, eventID, selectedSourceID, resolution string) error
	// ListTopics returns an agent's topics ordered by question count.
	ListTopics(ctx context.Context, agentID string) ([]*TopicRecord, error)
	// ListClustersByTopic returns a topic's clusters ordered by recency.
	ListClustersByTopic(ctx context.Context, topicID int64) ([]*ClusterRecord, error)
}

// InsightRepo provides methods for question insight persistence.
// It implements the InsightStore interface.
type InsightRepo struct {
	db *sql.DB
	q  queryer
}

// NewInsightRepo creates a new InsightRepo.
func NewInsightRepo(db *sql.DB) *InsightRepo {
	return &InsightRepo{db: db, q: db}
}

// InTx runs fn against a transaction-bound copy of the repo.
func (r *InsightRepo) InTx(ctx context.Context, fn func(InsightStore) error) error {
	if _, ok := r.q.(*sql.Tx); ok {
		// Already inside a transaction; nesting reuses it.
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&InsightRepo{db: r.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insight transaction: %w", err)
	}
	return nil
}

// UpsertTopic bumps the question counter and the counter matching the
// event's resolution, creating the topic on first use. Unknown resolutions
// count as unresolved.
func (r *InsightRepo) UpsertTopic(ctx context.Context, agentID, topicKey, label, resolution string) (*TopicRecord, error) {
	var answered, unresolved, ambiguous int
	switch resolution {
	case ResolutionAnswered:
		answered = 1
	case ResolutionAmbiguous:
		ambiguous = 1
	default:
		unresolved = 1
	}

	var topic TopicRecord
	var lastAsked sql.NullString
	err := r.q.QueryRowContext(ctx,
		`INSERT INTO question_topics
		 (agent_id, topic_key, label, question_count, answered_count, unresolved_count, ambiguous_count, last_asked_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (agent_id, topic_key) DO UPDATE SET
		 question_count = question_count + 1,
		 answered_count = answered_count + excluded.answered_count,
		 unresolved_count = unresolved_count + excluded.unresolved_count,
		 ambiguous_count = ambiguous_count + excluded.ambiguous_count,
		 last_asked_at = CURRENT_TIMESTAMP
		 RETURNING id, agent_id, topic_key, label, question_count,
		 answered_count, unresolved_count, ambiguous_count, last_asked_at`,
		agentID, topicKey, label, answered, unresolved, ambiguous,
	).Scan(&topic.ID, &topic.AgentID, &topic.TopicKey, &topic.Label, &topic.QuestionCount,
		&topic.AnsweredCount, &topic.UnresolvedCount, &topic.AmbiguousCount, &lastAsked)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert topic: %w", err)
	}
	if lastAsked.Valid {
		if topic.LastAskedAt, err = parseTime(lastAsked.String); err != nil {
			return nil, err
		}
	}
	return &topic, nil
}

// RecentClusters returns the most recently asked clusters of a topic.
func (r *InsightRepo) RecentClusters(ctx context.Context, topicID int64, limit int) ([]*ClusterRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		clusterSelect+` WHERE topic_id = ?
		 ORDER BY COALESCE(last_asked_at, first_asked_at) DESC, id DESC LIMIT ?`,
		topicID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent clusters: %w", err)
	}
	return scanClusters(rows)
}

const clusterSelect = `SELECT id, topic_id, agent_id, normalized_key, representative_question,
	centroid, question_count, COALESCE(last_answer, ''), COALESCE(last_mode, ''),
	COALESCE(last_confidence, 0), first_asked_at, COALESCE(last_asked_at, '')
	FROM question_clusters`

func scanClusters(rows *sql.Rows) ([]*ClusterRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	var clusters []*ClusterRecord
	for rows.Next() {
		var c ClusterRecord
		var centroid sql.NullString
		var firstAsked, lastAsked string
		if err := rows.Scan(&c.ID, &c.TopicID, &c.AgentID, &c.NormalizedKey, &c.Representative,
			&centroid, &c.QuestionCount, &c.LastAnswer, &c.LastMode, &c.LastConfidence,
			&firstAsked, &lastAsked); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		var err error
		if centroid.Valid {
			if c.Centroid, err = decodeEmbedding(centroid.String); err != nil {
				return nil, fmt.Errorf("cluster %d: %w", c.ID, err)
			}
		}
		if c.FirstAskedAt, err = parseTime(firstAsked); err != nil {
			return nil, err
		}
		if c.LastAskedAt, err = parseTime(lastAsked); err != nil {
			return nil, err
		}
		clusters = append(clusters, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return clusters, nil
}

// CreateCluster inserts a new cluster and returns its ID.
func (r *InsightRepo) CreateCluster(ctx context.Context, cluster *ClusterRecord) (int64, error) {
	centroid, err := encodeEmbedding(cluster.Centroid)
	if err != nil {
		return 0, fmt.Errorf("cluster centroid: %w", err)
	}

	var id int64
	err = r.q.QueryRowContext(ctx,
		`INSERT INTO question_clusters
		 (topic_id, agent_id, normalized_key, representative_question, centroid,
		  question_count, last_answer, last_mode, last_confidence, last_asked_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (agent_id, normalized_key) DO UPDATE SET
		 question_count = question_count + 1, centroid = excluded.centroid,
		 last_answer = excluded.last_answer, last_mode = excluded.last_mode,
		 last_confidence = excluded.last_confidence, last_asked_at = CURRENT_TIMESTAMP
		 RETURNING id`,
		cluster.TopicID, cluster.AgentID, cluster.NormalizedKey, cluster.Representative,
		centroid, cluster.LastAnswer, cluster.LastMode, cluster.LastConfidence,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create cluster: %w", err)
	}
	return id, nil
}

// TouchCluster folds a new member into an existing cluster. The centroid is
// overwritten rather than averaged, which biases matching toward how the
// question was most recently phrased.
func (r *InsightRepo) TouchCluster(ctx context.Context, clusterID int64, centroid []float32, answer, mode string, confidence float64) error {
	encoded, err := encodeEmbedding(centroid)
	if err != nil {
		return fmt.Errorf("cluster centroid: %w", err)
	}
	_, err = r.q.ExecContext(ctx,
		`UPDATE question_clusters SET
		 question_count = question_count + 1, centroid = ?,
		 last_answer = ?, last_mode = ?, last_confidence = ?, last_asked_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		encoded, answer, mode, confidence, clusterID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch cluster: %w", err)
	}
	return nil
}

// InsertEvent records one question occurrence.
func (r *InsightRepo) InsertEvent(ctx context.Context, event *EventRecord) error {
	var embedding any
	if len(event.Embedding) > 0 {
		encoded, err := encodeEmbedding(event.Embedding)
		if err != nil {
			return fmt.Errorf("event embedding: %w", err)
		}
		embedding = encoded
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO question_events
		 (id, agent_id, topic_id, cluster_id, question, normalized_question, embedding,
		  answer, mode, confidence, resolution, has_image_context, selected_source_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.AgentID, event.TopicID, event.ClusterID, event.Question,
		event.NormalizedKey, embedding, event.Answer, event.Mode, event.Confidence,
		event.Resolution, event.HasImageContext, event.SelectedSourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert question event: %w", err)
	}
	return nil
}

// InsertAmbiguity records the alternatives of an ambiguous answer.
func (r *InsightRepo) InsertAmbiguity(ctx context.Context, amb *AmbiguityRecord) error {
	alternatives, err := encodeAlternatives(amb.Alternatives)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		"INSERT INTO ambiguity_events (id, question_event_id, alternatives) VALUES (?, ?, ?)",
		amb.ID, amb.QuestionEventID, alternatives,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ambiguity event: %w", err)
	}
	return nil
}

// GetAmbiguity gets an ambiguity event by ID. Returns ErrNotFound if not found.
func (r *InsightRepo) GetAmbiguity(ctx context.Context, id string) (*AmbiguityRecord, error) {
	var amb AmbiguityRecord
	var alternatives string
	var selected, resolvedAt sql.NullString
	err := r.q.QueryRowContext(ctx,
		`SELECT id, question_event_id, alternatives, selected_source_id, resolved_at
		 FROM ambiguity_events WHERE id = ?`,
		id,
	).Scan(&amb.ID, &amb.QuestionEventID, &alternatives, &selected, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ambiguity event: %w", err)
	}
	if amb.Alternatives, err = decodeAlternatives(alternatives); err != nil {
		return nil, fmt.Errorf("ambiguity %s: %w", id, err)
	}
	amb.SelectedSourceID = selected.String
	if resolvedAt.Valid {
		if amb.ResolvedAt, err = parseTime(resolvedAt.String); err != nil {
			return nil, err
		}
	}
	return &amb, nil
}

// MarkAmbiguityResolved stores the user's pick on the ambiguity event.
func (r *InsightRepo) MarkAmbiguityResolved(ctx context.Context, id, selectedSourceID string) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE ambiguity_events SET selected_source_id = ?, resolved_at = CURRENT_TIMESTAMP WHERE id = ?",
		selectedSourceID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve ambiguity event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEventAnswered flips a question event to the given resolution.
func (r *InsightRepo) MarkEventAnswered(ctx context.Context, eventID, selectedSourceID, resolution string) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE question_events SET resolution = ?, selected_source_id = ? WHERE id = ?",
		resolution, selectedSourceID, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to update question event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTopics returns an agent's topics ordered by question count.
func (r *InsightRepo) ListTopics(ctx context.Context, agentID string) ([]*TopicRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, agent_id, topic_key, label, question_count,
		 answered_count, unresolved_count, ambiguous_count, COALESCE(last_asked_at, '')
		 FROM question_topics WHERE agent_id = ?
		 ORDER BY question_count DESC, topic_key`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var topics []*TopicRecord
	for rows.Next() {
		var t TopicRecord
		var lastAsked string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.TopicKey, &t.Label, &t.QuestionCount,
			&t.AnsweredCount, &t.UnresolvedCount, &t.AmbiguousCount, &lastAsked); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		if t.LastAskedAt, err = parseTime(lastAsked); err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return topics, nil
}

// ListClustersByTopic returns a topic's clusters ordered by recency.
func (r *InsightRepo) ListClustersByTopic(ctx context.Context, topicID int64) ([]*ClusterRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		clusterSelect+` WHERE topic_id = ?
		 ORDER BY COALESCE(last_asked_at, first_asked_at) DESC, id DESC`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	return scanClusters(rows)
}
