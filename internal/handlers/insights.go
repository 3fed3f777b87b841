package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kbagent/internal/contextutil"
	"kbagent/internal/insight"
)

// TopicLister reads the question analytics rollups.
type TopicLister interface {
	Topics(ctx context.Context, agentID string) ([]*insight.TopicInsight, error)
}

// AmbiguityResolver accepts the user's pick for an earlier ambiguous answer.
type AmbiguityResolver interface {
	ResolveAmbiguity(ctx context.Context, ambiguityID, selectedSourceID string) error
}

// InsightsHandler serves question analytics and ambiguity resolution.
type InsightsHandler struct {
	topics   TopicLister
	resolver AmbiguityResolver
}

// NewInsightsHandler creates a new InsightsHandler.
func NewInsightsHandler(topics TopicLister, resolver AmbiguityResolver) *InsightsHandler {
	return &InsightsHandler{topics: topics, resolver: resolver}
}

// TopicResponse is one topic rollup with its question clusters. The
// per-resolution counters are what makes knowledge gaps visible: a topic
// with a high unresolved count is missing documentation.
type TopicResponse struct {
	TopicKey        string            `json:"topic_key"`
	Label           string            `json:"label"`
	QuestionCount   int               `json:"question_count"`
	AnsweredCount   int               `json:"answered_count"`
	UnresolvedCount int               `json:"unresolved_count"`
	AmbiguousCount  int               `json:"ambiguous_count"`
	LastAskedAt     string            `json:"last_asked_at"`
	Clusters        []ClusterResponse `json:"clusters"`
}

// ClusterResponse is one near-duplicate question group.
type ClusterResponse struct {
	ID             int64   `json:"id"`
	Representative string  `json:"representative"`
	QuestionCount  int     `json:"question_count"`
	LastAnswer     string  `json:"last_answer,omitempty"`
	LastMode       string  `json:"last_mode,omitempty"`
	LastConfidence float64 `json:"last_confidence"`
	LastAskedAt    string  `json:"last_asked_at"`
}

// ResolveRequest represents the payload for resolving an ambiguity.
type ResolveRequest struct {
	SelectedSourceID string `json:"selected_source_id"`
}

// ListTopics returns an agent's topics with their clusters, most asked first.
func (h *InsightsHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	topics, err := h.topics.Topics(ctx, agentID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list topics", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list topics")
		return
	}

	responses := make([]TopicResponse, 0, len(topics))
	for _, topic := range topics {
		clusters := make([]ClusterResponse, 0, len(topic.Clusters))
		for _, cluster := range topic.Clusters {
			clusters = append(clusters, ClusterResponse{
				ID:             cluster.ID,
				Representative: cluster.Representative,
				QuestionCount:  cluster.QuestionCount,
				LastAnswer:     cluster.LastAnswer,
				LastMode:       cluster.LastMode,
				LastConfidence: cluster.LastConfidence,
				LastAskedAt:    cluster.LastAskedAt.UTC().Format(time.RFC3339),
			})
		}
		responses = append(responses, TopicResponse{
			TopicKey:        topic.TopicKey,
			Label:           topic.Label,
			QuestionCount:   topic.QuestionCount,
			AnsweredCount:   topic.AnsweredCount,
			UnresolvedCount: topic.UnresolvedCount,
			AmbiguousCount:  topic.AmbiguousCount,
			LastAskedAt:     topic.LastAskedAt.UTC().Format(time.RFC3339),
			Clusters:        clusters,
		})
	}

	writeJSON(ctx, w, http.StatusOK, responses)
}

// ResolveAmbiguity records which alternative the user picked.
func (h *InsightsHandler) ResolveAmbiguity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	ambiguityID := chi.URLParam(r, "id")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.resolver.ResolveAmbiguity(ctx, ambiguityID, req.SelectedSourceID); err != nil {
		handleEngineError(ctx, w, err, "Failed to resolve ambiguity")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
