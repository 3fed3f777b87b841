package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kbagent/internal/answer"
	"kbagent/internal/handlers"
	"kbagent/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine         answer.Engine
	Pipeline       handlers.DocumentIndexer
	Documents      storage.DocumentStore
	Topics         handlers.TopicLister
	VectorStore    handlers.CollectionChecker
	Collection     string
	EmbeddingModel string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	askHandler := handlers.NewAskHandler(deps.Engine)
	documentsHandler := handlers.NewDocumentsHandler(deps.Pipeline, deps.Documents, deps.EmbeddingModel)
	insightsHandler := handlers.NewInsightsHandler(deps.Topics, deps.Engine)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Collection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/ask", askHandler)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentsHandler.Upload)
			r.Get("/", documentsHandler.List)
			r.Get("/stats", documentsHandler.Stats)
			r.Delete("/{id}", documentsHandler.Delete)
		})

		r.Route("/insights", func(r chi.Router) {
			r.Get("/topics", insightsHandler.ListTopics)
			r.Post("/ambiguities/{id}/resolve", insightsHandler.ResolveAmbiguity)
		})
	})

	r.Method(http.MethodGet, "/health", healthHandler)

	return r
}
