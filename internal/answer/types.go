package answer

import "kbagent/internal/storage"

// AskRequest is one question scoped to an agent's documents.
type AskRequest struct {
	// AgentID scopes retrieval to one agent's indexed documents.
	AgentID string `json:"agent_id"`
	// Question is the user's question.
	Question string `json:"question"`
	// ImageContext optionally carries a textual description of an attached
	// image. It joins the question for retrieval and generation.
	ImageContext string `json:"image_context,omitempty"`
	// TopK optionally overrides how many chunks are ranked into the answer.
	TopK int `json:"top_k,omitempty"`
}

// Citation points at a chunk the answer was grounded in.
type Citation struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	// Excerpt is the leading slice of the chunk, at most 240 characters.
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// AskResponse is the answer with its evidence trail.
type AskResponse struct {
	Answer     string  `json:"answer"`
	Mode       string  `json:"mode"`
	Confidence float64 `json:"confidence"`
	// Citations back a grounded answer. Empty in ambiguous and fallback modes.
	Citations []Citation `json:"citations"`
	// Alternatives are the near-tied sources offered when the mode is
	// ambiguous, for the user to pick from.
	Alternatives []storage.Alternative `json:"alternatives,omitempty"`
	// AmbiguityEventID identifies the recorded ambiguity so the choice can
	// be reported back later.
	AmbiguityEventID string `json:"ambiguity_event_id,omitempty"`
}
