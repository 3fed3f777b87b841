package indexer

import (
	"context"
	"errors"
	"testing"

	"kbagent/internal/embedding"
	"kbagent/internal/storage"
	"kbagent/internal/vectorstore"
)

type fakeAgentStore struct {
	ensured map[string]string
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{ensured: map[string]string{}}
}

func (s *fakeAgentStore) Ensure(_ context.Context, id, name string) error {
	if _, ok := s.ensured[id]; !ok {
		s.ensured[id] = name
	}
	return nil
}

func (s *fakeAgentStore) GetByID(_ context.Context, id string) (*storage.AgentRecord, error) {
	if _, ok := s.ensured[id]; !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.AgentRecord{ID: id}, nil
}

func (s *fakeAgentStore) List(_ context.Context) ([]*storage.AgentRecord, error) {
	return nil, nil
}

type fakeDocumentStore struct {
	docs   map[string]*storage.DocumentRecord
	nextID int
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[string]*storage.DocumentRecord{}}
}

func (s *fakeDocumentStore) GetByAgentAndFilename(_ context.Context, agentID, filename string) (*storage.DocumentRecord, error) {
	for _, doc := range s.docs {
		if doc.AgentID == agentID && doc.Filename == filename {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeDocumentStore) GetByID(_ context.Context, id string) (*storage.DocumentRecord, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeDocumentStore) Upsert(_ context.Context, doc *storage.DocumentRecord) error {
	for _, existing := range s.docs {
		if existing.AgentID == doc.AgentID && existing.Filename == doc.Filename {
			doc.ID = existing.ID
			copied := *doc
			s.docs[doc.ID] = &copied
			return nil
		}
	}
	if doc.ID == "" {
		s.nextID++
		doc.ID = string(rune('0' + s.nextID))
	}
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, id string) error {
	if _, ok := s.docs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *fakeDocumentStore) ListByAgent(_ context.Context, agentID string) ([]*storage.DocumentRecord, error) {
	var docs []*storage.DocumentRecord
	for _, doc := range s.docs {
		if doc.AgentID == agentID {
			copied := *doc
			docs = append(docs, &copied)
		}
	}
	return docs, nil
}

func (s *fakeDocumentStore) Count(_ context.Context) (int, error) {
	return len(s.docs), nil
}

func (s *fakeDocumentStore) CountWithoutChunks(_ context.Context) (int, error) {
	return 0, nil
}

type fakeChunkStore struct {
	chunks map[string]*storage.ChunkRecord
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: map[string]*storage.ChunkRecord{}}
}

func (s *fakeChunkStore) InsertBatch(_ context.Context, chunks []*storage.ChunkRecord) error {
	for _, chunk := range chunks {
		copied := *chunk
		s.chunks[chunk.ID] = &copied
	}
	return nil
}

func (s *fakeChunkStore) DeleteByDocument(_ context.Context, documentID string) error {
	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *fakeChunkStore) ListIDsByDocument(_ context.Context, documentID string) ([]string, error) {
	var ids []string
	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeChunkStore) GetByIDs(_ context.Context, ids []string) ([]*storage.ChunkRecord, error) {
	var out []*storage.ChunkRecord
	for _, id := range ids {
		if chunk, ok := s.chunks[id]; ok {
			copied := *chunk
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeChunkStore) TokenCounts(_ context.Context) ([]int, error) {
	var counts []int
	for _, chunk := range s.chunks {
		counts = append(counts, chunk.TokenCount)
	}
	return counts, nil
}

type fakeVectorStore struct {
	points  map[string]vectorstore.Point
	deleted []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: map[string]vectorstore.Point{}}
}

func (s *fakeVectorStore) Upsert(_ context.Context, _ string, points []vectorstore.Point) error {
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *fakeVectorStore) Search(_ context.Context, _ string, _ []float32, _ int, _ map[string]any) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (s *fakeVectorStore) Delete(_ context.Context, _ string, ids []string) error {
	for _, id := range ids {
		delete(s.points, id)
		s.deleted = append(s.deleted, id)
	}
	return nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedTexts(_ context.Context, _ []string) (*embedding.Batch, error) {
	return nil, errors.New("embedding backend down")
}

func newTestPipeline() (*Pipeline, *fakeDocumentStore, *fakeChunkStore, *fakeVectorStore) {
	docs := newFakeDocumentStore()
	chunks := newFakeChunkStore()
	vectors := newFakeVectorStore()
	p := NewPipeline(newFakeAgentStore(), docs, chunks, embedding.NewMock(""), vectors, "chunks", NewChunker(200, 40))
	return p, docs, chunks, vectors
}

func TestPipeline_IndexDocument(t *testing.T) {
	p, docs, chunks, vectors := newTestPipeline()
	ctx := context.Background()

	content := []byte("# Manual de Vacaciones\n\nLas vacaciones se solicitan con 15 dias de antelacion a traves del portal del empleado. El periodo minimo de disfrute son 5 dias laborables consecutivos y el maximo depende del convenio aplicable a cada centro de trabajo.")

	result, err := p.IndexDocument(ctx, "support", "vacaciones.md", content)
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if result.Unchanged {
		t.Error("first index reported unchanged")
	}
	if result.Title != "Manual de Vacaciones" {
		t.Errorf("title = %q", result.Title)
	}
	if result.Chunks == 0 {
		t.Fatal("no chunks indexed")
	}
	if len(chunks.chunks) != result.Chunks {
		t.Errorf("store has %d chunks, result says %d", len(chunks.chunks), result.Chunks)
	}
	if len(vectors.points) != result.Chunks {
		t.Errorf("vector store has %d points, want %d", len(vectors.points), result.Chunks)
	}

	for _, chunk := range chunks.chunks {
		if len(chunk.Embedding) != embedding.MockVectorSize {
			t.Errorf("chunk embedding size = %d", len(chunk.Embedding))
		}
		if len(chunk.Lexical) == 0 {
			t.Error("chunk lexical vector empty")
		}
		if chunk.Provider != embedding.ProviderMock {
			t.Errorf("provider tag = %q", chunk.Provider)
		}
	}

	doc, err := docs.GetByID(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if doc.Hash == "" {
		t.Error("document hash not stored")
	}
}

func TestPipeline_IndexDocumentUnchanged(t *testing.T) {
	p, _, chunks, _ := newTestPipeline()
	ctx := context.Background()
	content := []byte("# Doc\n\nContenido estable del documento para probar el salto por hash.")

	first, err := p.IndexDocument(ctx, "support", "doc.md", content)
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	before := len(chunks.chunks)

	second, err := p.IndexDocument(ctx, "support", "doc.md", content)
	if err != nil {
		t.Fatalf("second IndexDocument() error = %v", err)
	}
	if !second.Unchanged {
		t.Error("identical content not skipped")
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("document ID changed: %s != %s", second.DocumentID, first.DocumentID)
	}
	if len(chunks.chunks) != before {
		t.Errorf("chunk count changed on skipped reindex: %d != %d", len(chunks.chunks), before)
	}
}

func TestPipeline_IndexDocumentReplacesOldChunks(t *testing.T) {
	p, _, chunks, vectors := newTestPipeline()
	ctx := context.Background()

	first, err := p.IndexDocument(ctx, "support", "doc.md", []byte("# Doc\n\nVersion uno del contenido del documento."))
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	oldIDs, _ := chunks.ListIDsByDocument(ctx, first.DocumentID)

	second, err := p.IndexDocument(ctx, "support", "doc.md", []byte("# Doc\n\nVersion dos, totalmente distinta, del contenido."))
	if err != nil {
		t.Fatalf("reindex error = %v", err)
	}
	if second.Unchanged {
		t.Fatal("changed content reported unchanged")
	}

	for _, oldID := range oldIDs {
		if _, ok := chunks.chunks[oldID]; ok {
			t.Errorf("old chunk %s survived reindex", oldID)
		}
		if _, ok := vectors.points[oldID]; ok {
			t.Errorf("old point %s survived reindex", oldID)
		}
	}
}

func TestPipeline_IndexDocumentEmbedFailure(t *testing.T) {
	docs := newFakeDocumentStore()
	chunks := newFakeChunkStore()
	vectors := newFakeVectorStore()
	p := NewPipeline(newFakeAgentStore(), docs, chunks, failingEmbedder{}, vectors, "chunks", NewChunker(200, 40))

	_, err := p.IndexDocument(context.Background(), "support", "doc.md", []byte("Contenido que nunca llegara a indexarse."))
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
	if len(chunks.chunks) != 0 {
		t.Errorf("chunks stored despite embed failure: %d", len(chunks.chunks))
	}
	if len(vectors.points) != 0 {
		t.Errorf("points stored despite embed failure: %d", len(vectors.points))
	}
}

func TestPipeline_IndexDocumentValidation(t *testing.T) {
	p, _, _, _ := newTestPipeline()
	ctx := context.Background()

	if _, err := p.IndexDocument(ctx, "", "doc.md", []byte("x")); err == nil {
		t.Error("missing agent ID accepted")
	}
	if _, err := p.IndexDocument(ctx, "support", "", []byte("x")); err == nil {
		t.Error("missing filename accepted")
	}
}

func TestPipeline_IndexDocumentEmptyContent(t *testing.T) {
	p, docs, _, _ := newTestPipeline()
	ctx := context.Background()

	result, err := p.IndexDocument(ctx, "support", "empty.md", []byte("   \n  "))
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if result.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", result.Chunks)
	}
	// Document record still lands so the upload is visible
	if _, err := docs.GetByID(ctx, result.DocumentID); err != nil {
		t.Errorf("empty document not stored: %v", err)
	}
}

func TestPipeline_RemoveDocument(t *testing.T) {
	p, docs, chunks, vectors := newTestPipeline()
	ctx := context.Background()

	result, err := p.IndexDocument(ctx, "support", "doc.md", []byte("# Doc\n\nContenido del documento que sera borrado."))
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	if err := p.RemoveDocument(ctx, result.DocumentID); err != nil {
		t.Fatalf("RemoveDocument() error = %v", err)
	}
	if _, err := docs.GetByID(ctx, result.DocumentID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("document still present after removal")
	}
	if len(vectors.points) != 0 {
		t.Errorf("points remain after removal: %d", len(vectors.points))
	}
	_ = chunks

	if err := p.RemoveDocument(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RemoveDocument(missing) = %v, want ErrNotFound", err)
	}
}

func TestPipeline_CoverageStats(t *testing.T) {
	p, _, _, _ := newTestPipeline()
	ctx := context.Background()

	if _, err := p.IndexDocument(ctx, "support", "doc.md", []byte("# Doc\n\nContenido para las estadisticas de cobertura del indice.")); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	stats, err := p.CoverageStats(ctx, "mock-embedding-256")
	if err != nil {
		t.Fatalf("CoverageStats() error = %v", err)
	}
	if stats.DocsProcessed != 1 {
		t.Errorf("DocsProcessed = %d, want 1", stats.DocsProcessed)
	}
	if stats.ChunksStored == 0 {
		t.Error("ChunksStored = 0")
	}
	if stats.TokenStats.Min <= 0 || stats.TokenStats.Max < stats.TokenStats.Min {
		t.Errorf("token stats inconsistent: %+v", stats.TokenStats)
	}
	if len(stats.IndexVersion) != 16 {
		t.Errorf("IndexVersion = %q, want 16 hex chars", stats.IndexVersion)
	}
}
