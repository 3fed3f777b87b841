package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"kbagent/internal/embedding"
	"kbagent/internal/insight"
	"kbagent/internal/llm"
	"kbagent/internal/storage"
	"kbagent/internal/vectorstore"
)

type fakeVectorStore struct {
	results   []vectorstore.SearchResult
	searchErr error

	gotCollection string
	gotK          int
	gotFilters    map[string]any
}

func (f *fakeVectorStore) Upsert(_ context.Context, _ string, _ []vectorstore.Point) error {
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, collection string, _ []float32, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	f.gotCollection = collection
	f.gotK = k
	f.gotFilters = filters
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, _ string, _ []string) error {
	return nil
}

type fakeChunkSource struct {
	records []*storage.ChunkRecord
	err     error
	gotIDs  []string
}

func (f *fakeChunkSource) GetByIDs(_ context.Context, ids []string) ([]*storage.ChunkRecord, error) {
	f.gotIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeGenerator struct {
	answer string
	err    error

	calls       int
	gotMessages []llm.Message
}

func (f *fakeGenerator) ChatWithMessages(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
	f.calls++
	f.gotMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeRecorder struct {
	recorded   *insight.Recorded
	recordErr  error
	resolveErr error

	gotOutcome    *insight.Outcome
	gotAmbiguity  string
	gotSelectedID string
}

func (f *fakeRecorder) Record(_ context.Context, outcome insight.Outcome) (*insight.Recorded, error) {
	f.gotOutcome = &outcome
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	if f.recorded != nil {
		return f.recorded, nil
	}
	return &insight.Recorded{QuestionEventID: "event-1"}, nil
}

func (f *fakeRecorder) ResolveAmbiguity(_ context.Context, ambiguityID, selectedSourceID string) error {
	f.gotAmbiguity = ambiguityID
	f.gotSelectedID = selectedSourceID
	return f.resolveErr
}

func embedQuery(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := embedding.EmbedText(context.Background(), embedding.NewMock(""), text)
	if err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}
	return vec
}

func newTestEngine(store *fakeVectorStore, chunks *fakeChunkSource, gen *fakeGenerator, rec *fakeRecorder) Engine {
	return NewEngine(embedding.NewMock(""), store, chunks, gen, rec, Config{Collection: "chunks"})
}

func TestAskGrounded(t *testing.T) {
	question := "cuando se cobra la nomina"
	queryVec := embedQuery(t, question)

	store := &fakeVectorStore{results: []vectorstore.SearchResult{
		{PointID: "chunk-a", Score: 0.9},
		{PointID: "chunk-b", Score: 0.2},
	}}
	chunks := &fakeChunkSource{records: []*storage.ChunkRecord{
		{
			ID:            "chunk-a",
			DocumentID:    "doc-1",
			DocumentTitle: "Guia de Nomina",
			Content:       "La nomina se cobra el dia veintiocho de cada mes por transferencia.",
			Embedding:     queryVec,
		},
		{
			ID:            "chunk-b",
			DocumentID:    "doc-2",
			DocumentTitle: "Mantenimiento",
			Content:       "El servidor de correo permanece en mantenimiento programado.",
			Embedding:     make([]float32, len(queryVec)),
		},
	}}
	gen := &fakeGenerator{answer: "El dia 28 de cada mes."}
	rec := &fakeRecorder{}

	resp, err := newTestEngine(store, chunks, gen, rec).Ask(context.Background(), AskRequest{
		AgentID:  "agent-1",
		Question: question,
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if resp.Mode != "grounded" {
		t.Fatalf("mode = %q, want grounded", resp.Mode)
	}
	if resp.Answer != "El dia 28 de cada mes." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Confidence < 0.45 {
		t.Errorf("confidence = %f, want >= 0.45", resp.Confidence)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("citations = %d, want 1", len(resp.Citations))
	}
	if resp.Citations[0].ChunkID != "chunk-a" || resp.Citations[0].DocumentTitle != "Guia de Nomina" {
		t.Errorf("citation = %+v", resp.Citations[0])
	}
	if len(resp.Alternatives) != 0 {
		t.Errorf("alternatives = %d, want 0", len(resp.Alternatives))
	}

	if store.gotFilters["agent_id"] != "agent-1" {
		t.Errorf("search filters = %v", store.gotFilters)
	}
	if store.gotK != DefaultCandidatePool {
		t.Errorf("search k = %d, want %d", store.gotK, DefaultCandidatePool)
	}
	if len(chunks.gotIDs) != 2 {
		t.Errorf("loaded chunk IDs = %v", chunks.gotIDs)
	}

	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
	if gen.gotMessages[0].Content != groundedSystemPrompt {
		t.Errorf("system prompt = %q", gen.gotMessages[0].Content)
	}
	if !strings.Contains(gen.gotMessages[1].Content, "[1] Guia de Nomina") {
		t.Errorf("user message missing numbered source: %q", gen.gotMessages[1].Content)
	}

	if rec.gotOutcome == nil {
		t.Fatal("outcome not recorded")
	}
	if rec.gotOutcome.SelectedSourceID != "chunk-a" {
		t.Errorf("recorded selected source = %q", rec.gotOutcome.SelectedSourceID)
	}
	if string(rec.gotOutcome.Mode) != "grounded" {
		t.Errorf("recorded mode = %q", rec.gotOutcome.Mode)
	}
}

func TestAskAmbiguous(t *testing.T) {
	question := "cuando se cobra la nomina"
	queryVec := embedQuery(t, question)
	content := "La nomina se cobra el dia veintiocho de cada mes."

	store := &fakeVectorStore{results: []vectorstore.SearchResult{
		{PointID: "chunk-a", Score: 0.9},
		{PointID: "chunk-b", Score: 0.9},
	}}
	chunks := &fakeChunkSource{records: []*storage.ChunkRecord{
		{ID: "chunk-a", DocumentID: "doc-1", DocumentTitle: "Convenio 2024", Content: content, Embedding: queryVec},
		{ID: "chunk-b", DocumentID: "doc-2", DocumentTitle: "Convenio 2025", Content: content, Embedding: queryVec},
	}}
	gen := &fakeGenerator{answer: "should not be called"}
	rec := &fakeRecorder{recorded: &insight.Recorded{QuestionEventID: "event-1", AmbiguityEventID: "amb-1"}}

	resp, err := newTestEngine(store, chunks, gen, rec).Ask(context.Background(), AskRequest{
		AgentID:  "agent-1",
		Question: question,
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if resp.Mode != "ambiguous" {
		t.Fatalf("mode = %q, want ambiguous", resp.Mode)
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", gen.calls)
	}
	if len(resp.Alternatives) != 2 {
		t.Fatalf("alternatives = %d, want 2", len(resp.Alternatives))
	}
	if resp.Alternatives[0].ChunkID != "chunk-a" || resp.Alternatives[1].ChunkID != "chunk-b" {
		t.Errorf("alternatives = %+v", resp.Alternatives)
	}
	if resp.AmbiguityEventID != "amb-1" {
		t.Errorf("ambiguity event ID = %q, want amb-1", resp.AmbiguityEventID)
	}
	if resp.Answer == "" {
		t.Error("ambiguous answer must explain the disambiguation step")
	}

	if rec.gotOutcome == nil {
		t.Fatal("outcome not recorded")
	}
	if len(rec.gotOutcome.Alternatives) != 2 {
		t.Errorf("recorded alternatives = %d, want 2", len(rec.gotOutcome.Alternatives))
	}
	if rec.gotOutcome.SelectedSourceID != "" {
		t.Errorf("recorded selected source = %q, want empty", rec.gotOutcome.SelectedSourceID)
	}
}

func TestAskFallbackNoResults(t *testing.T) {
	store := &fakeVectorStore{}
	chunks := &fakeChunkSource{}
	gen := &fakeGenerator{answer: "Generalmente la nomina se cobra a fin de mes."}
	rec := &fakeRecorder{}

	resp, err := newTestEngine(store, chunks, gen, rec).Ask(context.Background(), AskRequest{
		AgentID:  "agent-1",
		Question: "cuando se cobra la nomina",
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if resp.Mode != "fallback" {
		t.Fatalf("mode = %q, want fallback", resp.Mode)
	}
	if resp.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", resp.Confidence)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("citations = %d, want 0", len(resp.Citations))
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
	if gen.gotMessages[0].Content != fallbackSystemPrompt {
		t.Errorf("system prompt = %q", gen.gotMessages[0].Content)
	}
}

func TestAskImageContextReachesPrompt(t *testing.T) {
	store := &fakeVectorStore{}
	chunks := &fakeChunkSource{}
	gen := &fakeGenerator{answer: "ok"}
	rec := &fakeRecorder{}

	_, err := newTestEngine(store, chunks, gen, rec).Ask(context.Background(), AskRequest{
		AgentID:      "agent-1",
		Question:     "que pone en este documento",
		ImageContext: "captura de una nomina de marzo",
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if !strings.Contains(gen.gotMessages[1].Content, "captura de una nomina de marzo") {
		t.Errorf("user message missing image context: %q", gen.gotMessages[1].Content)
	}
	if rec.gotOutcome == nil || !rec.gotOutcome.HasImageContext {
		t.Error("image context flag not recorded")
	}
}

func TestAskRecorderFailureIgnored(t *testing.T) {
	store := &fakeVectorStore{}
	chunks := &fakeChunkSource{}
	gen := &fakeGenerator{answer: "respuesta"}
	rec := &fakeRecorder{recordErr: errors.New("insight db locked")}

	resp, err := newTestEngine(store, chunks, gen, rec).Ask(context.Background(), AskRequest{
		AgentID:  "agent-1",
		Question: "cuando se cobra la nomina",
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "respuesta" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.AmbiguityEventID != "" {
		t.Errorf("ambiguity event ID = %q, want empty", resp.AmbiguityEventID)
	}
}

func TestAskValidation(t *testing.T) {
	engine := newTestEngine(&fakeVectorStore{}, &fakeChunkSource{}, &fakeGenerator{}, &fakeRecorder{})

	tests := []struct {
		name string
		req  AskRequest
	}{
		{"missing agent", AskRequest{Question: "hola"}},
		{"missing question", AskRequest{AgentID: "agent-1"}},
		{"whitespace question", AskRequest{AgentID: "agent-1", Question: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Ask(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Ask() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestAskErrorMapping(t *testing.T) {
	t.Run("vector store down", func(t *testing.T) {
		store := &fakeVectorStore{searchErr: errors.New("connection refused")}
		engine := newTestEngine(store, &fakeChunkSource{}, &fakeGenerator{}, &fakeRecorder{})

		_, err := engine.Ask(context.Background(), AskRequest{AgentID: "a", Question: "hola"})
		if !errors.Is(err, ErrVectorStore) {
			t.Errorf("Ask() error = %v, want ErrVectorStore", err)
		}
	})

	t.Run("generator down", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("bad status 503")}
		engine := newTestEngine(&fakeVectorStore{}, &fakeChunkSource{}, gen, &fakeRecorder{})

		_, err := engine.Ask(context.Background(), AskRequest{AgentID: "a", Question: "hola"})
		if !errors.Is(err, ErrGeneration) {
			t.Errorf("Ask() error = %v, want ErrGeneration", err)
		}
	})
}

func TestResolveAmbiguity(t *testing.T) {
	rec := &fakeRecorder{}
	engine := newTestEngine(&fakeVectorStore{}, &fakeChunkSource{}, &fakeGenerator{}, rec)

	if err := engine.ResolveAmbiguity(context.Background(), "amb-1", "chunk-a"); err != nil {
		t.Fatalf("ResolveAmbiguity() error = %v", err)
	}
	if rec.gotAmbiguity != "amb-1" || rec.gotSelectedID != "chunk-a" {
		t.Errorf("resolve args = (%q, %q)", rec.gotAmbiguity, rec.gotSelectedID)
	}

	if err := engine.ResolveAmbiguity(context.Background(), "", "chunk-a"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing ambiguity ID error = %v, want ErrInvalidInput", err)
	}
	if err := engine.ResolveAmbiguity(context.Background(), "amb-1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing source ID error = %v, want ErrInvalidInput", err)
	}

	rec.resolveErr = fmt.Errorf("loading ambiguity: %w", storage.ErrNotFound)
	if err := engine.ResolveAmbiguity(context.Background(), "missing", "chunk-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event error = %v, want ErrNotFound", err)
	}
}

func TestCitationExcerptAndRounding(t *testing.T) {
	long := strings.Repeat("a", 300)

	got := excerpt(long)
	if len([]rune(got)) != excerptLength {
		t.Errorf("excerpt length = %d, want %d", len([]rune(got)), excerptLength)
	}
	if excerpt("corto") != "corto" {
		t.Error("short content must pass through untouched")
	}

	if roundScore(0.123456) != 0.1235 {
		t.Errorf("roundScore(0.123456) = %f", roundScore(0.123456))
	}
	if roundScore(0.5) != 0.5 {
		t.Errorf("roundScore(0.5) = %f", roundScore(0.5))
	}
}
