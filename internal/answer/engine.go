package answer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"kbagent/internal/contextutil"
	"kbagent/internal/embedding"
	"kbagent/internal/evidence"
	"kbagent/internal/insight"
	"kbagent/internal/lexical"
	"kbagent/internal/llm"
	"kbagent/internal/ranking"
	"kbagent/internal/storage"
	"kbagent/internal/vectorstore"
)

const (
	// DefaultCandidatePool is how many chunks are recalled from the vector
	// store before hybrid ranking narrows them down.
	DefaultCandidatePool = 32

	maxTopK       = 20
	excerptLength = 240
)

const groundedSystemPrompt = "You are a company knowledge assistant. Answer the question using only " +
	"the numbered sources below. Cite the sources you relied on by number. If the sources do not " +
	"contain the answer, say that the documents do not cover it."

const fallbackSystemPrompt = "You are a company knowledge assistant. No company document matched this " +
	"question, so answer from general knowledge and state explicitly that the answer is not based on " +
	"company documents."

const ambiguousAnswer = "Your question matches several different sources. Pick the one you mean and " +
	"ask again, or resolve the ambiguity with the listed alternatives."

// ChunkSource loads stored chunk records for ranking.
type ChunkSource interface {
	GetByIDs(ctx context.Context, ids []string) ([]*storage.ChunkRecord, error)
}

// Generator produces the final answer text from a prompt.
type Generator interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// InsightRecorder persists question outcomes for analytics.
type InsightRecorder interface {
	Record(ctx context.Context, outcome insight.Outcome) (*insight.Recorded, error)
	ResolveAmbiguity(ctx context.Context, ambiguityID, selectedSourceID string) error
}

// Engine answers questions against an agent's indexed documents.
type Engine interface {
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
	ResolveAmbiguity(ctx context.Context, ambiguityID, selectedSourceID string) error
}

// Config tunes retrieval and decision making. Zero values fall back to the
// package defaults, so a partially filled struct from configuration works.
type Config struct {
	Collection    string
	TopK          int
	CandidatePool int
	Weights       ranking.Weights
	Thresholds    evidence.Thresholds
}

type engine struct {
	embedder      embedding.Provider
	vectorStore   vectorstore.VectorStore
	chunks        ChunkSource
	generator     Generator
	recorder      InsightRecorder
	collection    string
	topK          int
	candidatePool int
	weights       ranking.Weights
	thresholds    evidence.Thresholds
}

// NewEngine creates an answer engine.
func NewEngine(embedder embedding.Provider, store vectorstore.VectorStore, chunks ChunkSource, generator Generator, recorder InsightRecorder, cfg Config) Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = ranking.DefaultTopK
	}
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = DefaultCandidatePool
	}
	if cfg.Weights == (ranking.Weights{}) {
		cfg.Weights = ranking.DefaultWeights()
	}
	if cfg.Thresholds == (evidence.Thresholds{}) {
		cfg.Thresholds = evidence.DefaultThresholds()
	}
	return &engine{
		embedder:      embedder,
		vectorStore:   store,
		chunks:        chunks,
		generator:     generator,
		recorder:      recorder,
		collection:    cfg.Collection,
		topK:          cfg.TopK,
		candidatePool: cfg.CandidatePool,
		weights:       cfg.Weights,
		thresholds:    cfg.Thresholds,
	}
}

// Ask runs the full retrieval-and-decision pipeline: embed the question,
// recall candidates scoped to the agent, rank them, decide the answer mode,
// generate the answer, and record the outcome.
func (e *engine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.AgentID == "" {
		return AskResponse{}, &ValidationError{Field: "agent_id", Message: "agent ID is required"}
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResponse{}, &ValidationError{Field: "question", Message: "question is required"}
	}

	topK := e.topK
	if req.TopK > 0 {
		topK = req.TopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	queryText := question
	if req.ImageContext != "" {
		queryText = question + "\n" + req.ImageContext
	}

	queryVec, err := embedding.EmbedText(ctx, e.embedder, queryText)
	if err != nil {
		return AskResponse{}, fmt.Errorf("%w: %s", ErrEmbedding, err)
	}

	results, err := e.vectorStore.Search(ctx, e.collection, queryVec, e.candidatePool, map[string]any{
		"agent_id": req.AgentID,
	})
	if err != nil {
		return AskResponse{}, fmt.Errorf("%w: %s", ErrVectorStore, err)
	}

	ranked, err := e.rankResults(ctx, queryText, queryVec, results, topK)
	if err != nil {
		return AskResponse{}, err
	}

	decision := evidence.Decide(ranked, req.ImageContext != "", e.thresholds)
	logger.InfoContext(ctx, "evidence decided",
		"agent_id", req.AgentID,
		"mode", decision.Mode,
		"confidence", decision.Confidence,
		"candidates", len(ranked),
		"selected", len(decision.Selected),
	)

	resp := AskResponse{
		Mode:       string(decision.Mode),
		Confidence: decision.Confidence,
		Citations:  []Citation{},
	}

	switch decision.Mode {
	case evidence.ModeAmbiguous:
		resp.Answer = ambiguousAnswer
		resp.Alternatives = alternativesFrom(decision.Selected)
	case evidence.ModeGrounded:
		answer, err := e.generate(ctx, question, req.ImageContext, decision.Selected)
		if err != nil {
			return AskResponse{}, err
		}
		resp.Answer = answer
		resp.Citations = citationsFrom(decision.Selected)
	default:
		answer, err := e.generate(ctx, question, req.ImageContext, nil)
		if err != nil {
			return AskResponse{}, err
		}
		resp.Answer = answer
	}

	e.record(ctx, req, queryVec, decision, &resp)

	return resp, nil
}

// rankResults loads the recalled chunks from storage and ranks them against
// the query with the blended model.
func (e *engine) rankResults(ctx context.Context, queryText string, queryVec []float32, results []vectorstore.SearchResult, topK int) ([]ranking.Scored, error) {
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.PointID)
	}
	records, err := e.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	candidates := make([]ranking.Candidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, ranking.Candidate{
			ID:            rec.ID,
			DocumentID:    rec.DocumentID,
			DocumentTitle: rec.DocumentTitle,
			Content:       rec.Content,
			Embedding:     rec.Embedding,
			Lexical:       lexical.Vector(rec.Lexical),
		})
	}

	query := ranking.Query{
		Text:      queryText,
		Embedding: queryVec,
		Lexical:   lexical.BuildVector(queryText),
	}
	return ranking.Rank(query, candidates, topK, e.weights), nil
}

// generate calls the generator with a mode-appropriate prompt. A non-empty
// selected slice produces a grounded prompt with numbered sources.
func (e *engine) generate(ctx context.Context, question, imageContext string, selected []ranking.Scored) (string, error) {
	systemPrompt := fallbackSystemPrompt
	temperature := float32(0.7)

	var user strings.Builder
	user.WriteString(question)
	if imageContext != "" {
		user.WriteString("\n\nAttached image description: ")
		user.WriteString(imageContext)
	}

	if len(selected) > 0 {
		systemPrompt = groundedSystemPrompt
		temperature = 0.2
		user.WriteString("\n\n--- Sources ---\n")
		for i, chunk := range selected {
			fmt.Fprintf(&user, "\n[%d] %s\n%s\n", i+1, chunk.DocumentTitle, chunk.Content)
		}
		user.WriteString("\n--- End sources ---")
	}

	answer, err := e.generator.ChatWithMessages(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user.String()},
	}, llm.ChatParams{Temperature: temperature})
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneration, err)
	}
	return answer, nil
}

// record persists the outcome. Recording is best-effort: failures are logged
// and never surface to the caller.
func (e *engine) record(ctx context.Context, req AskRequest, queryVec []float32, decision evidence.Decision, resp *AskResponse) {
	logger := contextutil.LoggerFromContext(ctx)

	outcome := insight.Outcome{
		AgentID:         req.AgentID,
		Question:        req.Question,
		Embedding:       queryVec,
		Answer:          resp.Answer,
		Mode:            decision.Mode,
		Confidence:      decision.Confidence,
		HasImageContext: req.ImageContext != "",
		Alternatives:    resp.Alternatives,
	}
	if decision.Mode == evidence.ModeGrounded && len(decision.Selected) > 0 {
		outcome.SelectedSourceID = decision.Selected[0].ID
	}

	recorded, err := e.recorder.Record(ctx, outcome)
	if err != nil {
		logger.WarnContext(ctx, "failed to record question outcome", "agent_id", req.AgentID, "error", err)
		return
	}
	resp.AmbiguityEventID = recorded.AmbiguityEventID
}

// ResolveAmbiguity reports which alternative the user picked for an earlier
// ambiguous answer.
func (e *engine) ResolveAmbiguity(ctx context.Context, ambiguityID, selectedSourceID string) error {
	if ambiguityID == "" {
		return &ValidationError{Field: "ambiguity_event_id", Message: "ambiguity event ID is required"}
	}
	if selectedSourceID == "" {
		return &ValidationError{Field: "selected_source_id", Message: "selected source ID is required"}
	}

	err := e.recorder.ResolveAmbiguity(ctx, ambiguityID, selectedSourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: ambiguity event %s", ErrNotFound, ambiguityID)
	}
	return err
}

func citationsFrom(selected []ranking.Scored) []Citation {
	citations := make([]Citation, 0, len(selected))
	for _, chunk := range selected {
		citations = append(citations, Citation{
			ChunkID:       chunk.ID,
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
			Excerpt:       excerpt(chunk.Content),
			Score:         roundScore(chunk.Score),
		})
	}
	return citations
}

func alternativesFrom(selected []ranking.Scored) []storage.Alternative {
	alternatives := make([]storage.Alternative, 0, len(selected))
	for _, chunk := range selected {
		alternatives = append(alternatives, storage.Alternative{
			ChunkID:       chunk.ID,
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
			Excerpt:       excerpt(chunk.Content),
			Score:         roundScore(chunk.Score),
		})
	}
	return alternatives
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return content
	}
	return string(runes[:excerptLength])
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}
