package config

import (
	"log/slog"
	"path/filepath"
	"testing"
)

// setTestDB keeps Load from creating a data directory inside the repo.
func setTestDB(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "kbagent.db"))
}

func TestLoadDefaults(t *testing.T) {
	setTestDB(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "9000" {
		t.Errorf("APIPort = %q, want 9000", cfg.APIPort)
	}
	if cfg.QdrantCollection != "chunks" {
		t.Errorf("QdrantCollection = %q, want chunks", cfg.QdrantCollection)
	}
	if cfg.ChunkSize != 1200 || cfg.ChunkOverlap != 220 {
		t.Errorf("chunking = (%d, %d), want (1200, 220)", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.RankerTopK != 6 || cfg.RankerCandidatePool != 32 {
		t.Errorf("ranker = (%d, %d), want (6, 32)", cfg.RankerTopK, cfg.RankerCandidatePool)
	}
	if cfg.Weights.Semantic != 0.30 || cfg.Weights.Lexical != 0.25 || cfg.Weights.Coverage != 0.35 || cfg.Weights.Concept != 0.10 {
		t.Errorf("weights = %+v", cfg.Weights)
	}
	if cfg.Thresholds.MinScore != 0.45 || cfg.Thresholds.AmbiguityMargin != 0.12 {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Thresholds.MaxSelected != cfg.RankerTopK {
		t.Errorf("MaxSelected = %d, want %d", cfg.Thresholds.MaxSelected, cfg.RankerTopK)
	}
	if cfg.Embedding.Provider != "primary" {
		t.Errorf("embedding provider = %q, want primary", cfg.Embedding.Provider)
	}
	if cfg.Embedding.VectorSize != 256 {
		t.Errorf("vector size = %d, want 256", cfg.Embedding.VectorSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	setTestDB(t)
	t.Setenv("API_PORT", "8088")
	t.Setenv("EMBEDDING_PROVIDER", "mock")
	t.Setenv("EMBEDDING_VECTOR_SIZE", "512")
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("RANKER_WEIGHT_SEMANTIC", "0.5")
	t.Setenv("EVIDENCE_MIN_SCORE", "0.6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "8088" {
		t.Errorf("APIPort = %q", cfg.APIPort)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.VectorSize != 512 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.ChunkSize != 800 || cfg.ChunkOverlap != 100 {
		t.Errorf("chunking = (%d, %d)", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.Weights.Semantic != 0.5 {
		t.Errorf("semantic weight = %f", cfg.Weights.Semantic)
	}
	if cfg.Thresholds.MinScore != 0.6 {
		t.Errorf("min score = %f", cfg.Thresholds.MinScore)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-integer chunk size", "CHUNK_SIZE", "big"},
		{"non-numeric weight", "RANKER_WEIGHT_LEXICAL", "heavy"},
		{"non-integer alternatives", "EVIDENCE_MAX_ALTERNATIVES", "some"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestDB(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadRejectsOverlapNotSmallerThanSize(t *testing.T) {
	setTestDB(t)
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted overlap equal to chunk size")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
