package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AgentRecord represents a knowledge agent owning a set of documents.
type AgentRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// DocumentRecord represents a source document uploaded to an agent.
type DocumentRecord struct {
	ID        string // UUID
	AgentID   string
	Filename  string // Unique per agent, the re-index natural key
	Title     string // Extracted from content, falls back to filename
	Hash      string // SHA256 hex of the raw content
	UpdatedAt time.Time
}

// ChunkRecord represents an indexed slice of a document together with both
// retrieval vectors. Embedding and Lexical are stored as validated JSON so a
// corrupt row is rejected at write time, not discovered at query time.
type ChunkRecord struct {
	ID            string // UUID (same as the vector store point ID)
	DocumentID    string
	ChunkIndex    int
	TokenCount    int
	Content       string
	Embedding     []float32
	Lexical       map[string]float64
	Provider      string // Embedding provider tag
	Model         string // Embedding model tag
	DocumentTitle string // Populated on reads that join documents, never stored
}

// Resolution states stamped on question events and tallied per topic.
const (
	ResolutionAnswered   = "ANSWERED"
	ResolutionUnresolved = "UNRESOLVED"
	ResolutionAmbiguous  = "AMBIGUOUS"
)

// TopicRecord aggregates question traffic under a coarse topic per agent,
// with a counter per resolution so unanswered topics stand out.
type TopicRecord struct {
	ID              int64
	AgentID         string
	TopicKey        string
	Label           string
	QuestionCount   int
	AnsweredCount   int
	UnresolvedCount int
	AmbiguousCount  int
	LastAskedAt     time.Time
}

// ClusterRecord groups near-duplicate questions under a topic. The centroid
// is the embedding of the most recent member.
type ClusterRecord struct {
	ID             int64
	TopicID        int64
	AgentID        string
	NormalizedKey  string
	Representative string
	Centroid       []float32
	QuestionCount  int
	LastAnswer     string
	LastMode       string
	LastConfidence float64
	FirstAskedAt   time.Time
	LastAskedAt    time.Time
}

// EventRecord is one answered (or unanswered) question occurrence. The query
// embedding is kept on the event so the log stays replayable even after the
// cluster centroid moves on.
type EventRecord struct {
	ID               string // UUID
	AgentID          string
	TopicID          int64
	ClusterID        int64
	Question         string
	NormalizedKey    string
	Embedding        []float32
	Answer           string
	Mode             string
	Confidence       float64
	Resolution       string
	HasImageContext  bool
	SelectedSourceID string
	CreatedAt        time.Time
}

// AmbiguityRecord captures the alternatives offered when an answer was torn
// between close sources, and which one the user eventually picked.
type AmbiguityRecord struct {
	ID               string // UUID
	QuestionEventID  string
	Alternatives     []Alternative
	SelectedSourceID string
	ResolvedAt       time.Time
}

// Alternative is one candidate source shown to the user during an ambiguous
// answer.
type Alternative struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Excerpt       string  `json:"excerpt"`
	Score         float64 `json:"score"`
}

// encodeEmbedding serializes a dense vector to JSON, rejecting NaN and Inf
// components before they can poison a stored row.
func encodeEmbedding(vec []float32) (string, error) {
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(raw), nil
}

func decodeEmbedding(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return vec, nil
}

// encodeLexical serializes a sparse term-weight vector to JSON. Weights are
// term frequencies, so negative or non-finite values indicate a bug upstream.
func encodeLexical(m map[string]float64) (string, error) {
	for term, w := range m {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return "", fmt.Errorf("lexical weight for %q is not finite", term)
		}
		if w < 0 {
			return "", fmt.Errorf("lexical weight for %q is negative", term)
		}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode lexical vector: %w", err)
	}
	return string(raw), nil
}

func decodeLexical(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode lexical vector: %w", err)
	}
	return m, nil
}

func encodeAlternatives(alts []Alternative) (string, error) {
	raw, err := json.Marshal(alts)
	if err != nil {
		return "", fmt.Errorf("failed to encode alternatives: %w", err)
	}
	return string(raw), nil
}

func decodeAlternatives(raw string) ([]Alternative, error) {
	if raw == "" {
		return nil, nil
	}
	var alts []Alternative
	if err := json.Unmarshal([]byte(raw), &alts); err != nil {
		return nil, fmt.Errorf("failed to decode alternatives: %w", err)
	}
	return alts, nil
}

// parseTime handles both SQLite DATETIME formats seen in the wild.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
