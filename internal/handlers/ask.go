package handlers

import (
	"encoding/json"
	"net/http"

	"kbagent/internal/answer"
	"kbagent/internal/contextutil"
	"kbagent/internal/storage"
)

// AskHandler handles question answering requests.
type AskHandler struct {
	engine answer.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(engine answer.Engine) *AskHandler {
	return &AskHandler{engine: engine}
}

// AskRequest represents the HTTP request payload for questions.
// This mirrors answer.AskRequest but is defined here for HTTP layer separation.
type AskRequest struct {
	AgentID      string `json:"agent_id"`
	Question     string `json:"question"`
	ImageContext string `json:"image_context,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
}

// AskResponse represents the HTTP response payload for questions.
type AskResponse struct {
	Answer           string                `json:"answer"`
	Mode             string                `json:"mode"`
	Confidence       float64               `json:"confidence"`
	Citations        []CitationResponse    `json:"citations"`
	Alternatives     []storage.Alternative `json:"alternatives,omitempty"`
	AmbiguityEventID string                `json:"ambiguity_event_id,omitempty"`
}

// CitationResponse represents one cited source in the HTTP response.
type CitationResponse struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Excerpt       string  `json:"excerpt"`
	Score         float64 `json:"score"`
}

// ServeHTTP answers a question against the agent's indexed documents.
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	engineResp, err := h.engine.Ask(ctx, answer.AskRequest{
		AgentID:      req.AgentID,
		Question:     req.Question,
		ImageContext: req.ImageContext,
		TopK:         req.TopK,
	})
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to answer question")
		return
	}

	citations := make([]CitationResponse, len(engineResp.Citations))
	for i, c := range engineResp.Citations {
		citations[i] = CitationResponse{
			ChunkID:       c.ChunkID,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			Excerpt:       c.Excerpt,
			Score:         c.Score,
		}
	}

	writeJSON(ctx, w, http.StatusOK, AskResponse{
		Answer:           engineResp.Answer,
		Mode:             engineResp.Mode,
		Confidence:       engineResp.Confidence,
		Citations:        citations,
		Alternatives:     engineResp.Alternatives,
		AmbiguityEventID: engineResp.AmbiguityEventID,
	})
}
