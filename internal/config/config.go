package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"kbagent/internal/embedding"
	"kbagent/internal/evidence"
	"kbagent/internal/indexer"
	"kbagent/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  string
	LogFormat string

	DBPath           string
	QdrantURL        string
	QdrantCollection string

	Embedding embedding.Config

	GeneratorBaseURL string
	GeneratorAPIKey  string
	GeneratorModel   string

	ChunkSize    int
	ChunkOverlap int

	RankerTopK          int
	RankerCandidatePool int
	Weights             ranking.Weights
	Thresholds          evidence.Thresholds
}

// Load reads configuration from environment variables and returns a Config
// struct, applying defaults for optional fields. If a .env file exists in the
// current directory or an ancestor, it is loaded first; environment variables
// already set take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Walk up from the working directory looking for a project-root .env.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBPath:           getEnv("DB_PATH", "./data/kbagent.db"),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "chunks"),

		Embedding: embedding.Config{
			Provider: getEnv("EMBEDDING_PROVIDER", embedding.ProviderPrimary),
			Model:    getEnv("EMBEDDING_MODEL", ""),
			BaseURL:  getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:   getEnv("EMBEDDING_API_KEY", ""),
		},

		GeneratorBaseURL: getEnv("GENERATOR_BASE_URL", "http://localhost:8080"),
		GeneratorAPIKey:  getEnv("GENERATOR_API_KEY", ""),
		GeneratorModel:   getEnv("GENERATOR_MODEL", ""),
	}

	var err error
	if cfg.Embedding.VectorSize, err = getEnvInt("EMBEDDING_VECTOR_SIZE", embedding.MockVectorSize); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", indexer.DefaultChunkSize); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", indexer.DefaultChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	if cfg.RankerTopK, err = getEnvInt("RANKER_TOP_K", ranking.DefaultTopK); err != nil {
		return nil, err
	}
	if cfg.RankerCandidatePool, err = getEnvInt("RANKER_CANDIDATE_POOL", 32); err != nil {
		return nil, err
	}

	defaultWeights := ranking.DefaultWeights()
	if cfg.Weights.Semantic, err = getEnvFloat("RANKER_WEIGHT_SEMANTIC", defaultWeights.Semantic); err != nil {
		return nil, err
	}
	if cfg.Weights.Lexical, err = getEnvFloat("RANKER_WEIGHT_LEXICAL", defaultWeights.Lexical); err != nil {
		return nil, err
	}
	if cfg.Weights.Coverage, err = getEnvFloat("RANKER_WEIGHT_COVERAGE", defaultWeights.Coverage); err != nil {
		return nil, err
	}
	if cfg.Weights.Concept, err = getEnvFloat("RANKER_WEIGHT_CONCEPT", defaultWeights.Concept); err != nil {
		return nil, err
	}

	defaultThresholds := evidence.DefaultThresholds()
	if cfg.Thresholds.MinScore, err = getEnvFloat("EVIDENCE_MIN_SCORE", defaultThresholds.MinScore); err != nil {
		return nil, err
	}
	if cfg.Thresholds.AmbiguityMargin, err = getEnvFloat("EVIDENCE_AMBIGUITY_MARGIN", defaultThresholds.AmbiguityMargin); err != nil {
		return nil, err
	}
	if cfg.Thresholds.GroundedMargin, err = getEnvFloat("EVIDENCE_GROUNDED_MARGIN", defaultThresholds.GroundedMargin); err != nil {
		return nil, err
	}
	if cfg.Thresholds.MaxAlternatives, err = getEnvInt("EVIDENCE_MAX_ALTERNATIVES", defaultThresholds.MaxAlternatives); err != nil {
		return nil, err
	}
	cfg.Thresholds.MaxSelected = cfg.RankerTopK

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps the configured log level to a slog.Level. Unknown values
// fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return value, nil
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return value, nil
}
