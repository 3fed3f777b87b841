package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"kbagent/internal/answer"
	"kbagent/internal/config"
	"kbagent/internal/embedding"
	"kbagent/internal/http"
	"kbagent/internal/indexer"
	"kbagent/internal/insight"
	"kbagent/internal/llm"
	"kbagent/internal/storage"
	"kbagent/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel, "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	agentRepo := storage.NewAgentRepo(db)
	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	insightRepo := storage.NewInsightRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Ensure collection exists with correct vector size
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.Embedding.VectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.Embedding.VectorSize)

	// Build the embedding provider and probe it once (fail-fast on
	// misconfiguration or a dimensionality mismatch)
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}
	probe, err := embedding.EmbedText(ctx, embedder, "test")
	if err != nil {
		log.Fatalf("Failed to validate embedding provider: %v", err)
	}
	if len(probe) != cfg.Embedding.VectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.Embedding.VectorSize, len(probe))
	}
	slog.Info("Embedding provider validated", "provider", cfg.Embedding.Provider, "vector_size", cfg.Embedding.VectorSize)

	// Create indexing pipeline
	pipeline := indexer.NewPipeline(
		agentRepo,
		documentRepo,
		chunkRepo,
		embedder,
		vectorStore,
		cfg.QdrantCollection,
		indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
	)

	// Create generator client (external service layer)
	generator := llm.NewClient(cfg.GeneratorBaseURL, cfg.GeneratorAPIKey, cfg.GeneratorModel)

	// Create insight recorder and answer engine
	recorder := insight.NewRecorder(insightRepo)
	engine := answer.NewEngine(embedder, vectorStore, chunkRepo, generator, recorder, answer.Config{
		Collection:    cfg.QdrantCollection,
		TopK:          cfg.RankerTopK,
		CandidatePool: cfg.RankerCandidatePool,
		Weights:       cfg.Weights,
		Thresholds:    cfg.Thresholds,
	})
	slog.Info("Answer engine initialized")

	// Create router with dependencies
	deps := &http.Deps{
		Engine:         engine,
		Pipeline:       pipeline,
		Documents:      documentRepo,
		Topics:         recorder,
		VectorStore:    vectorStore,
		Collection:     cfg.QdrantCollection,
		EmbeddingModel: cfg.Embedding.Model,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("Generator configuration", "base_url", cfg.GeneratorBaseURL, "model", cfg.GeneratorModel)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
