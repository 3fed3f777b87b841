package embedding

import (
	"context"
	"fmt"
)

// Provider names accepted by New.
const (
	ProviderPrimary = "primary"
	ProviderMock    = "mock"
)

// Batch is the result of embedding a batch of texts, tagged with the
// provider and model that produced it so stored vectors can be checked
// against the active configuration.
type Batch struct {
	Vectors  [][]float32
	Provider string
	Model    string
}

// Provider maps batches of texts to dense vectors. Implementations must be
// safe for concurrent use.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) (*Batch, error)
}

// Config selects and parameterizes the embedding backend. It is resolved
// once at startup and injected; providers never read the environment
// themselves.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	VectorSize int
}

// ConfigError marks a fatal provider misconfiguration. Callers treat it as
// fail-fast, unlike transient provider failures which may be retried.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "embedding configuration: " + e.Msg
}

// New builds the configured provider. Unknown provider names and missing
// primary credentials fail immediately with a *ConfigError; there is no
// silent fallback between providers.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderPrimary:
		if cfg.BaseURL == "" {
			return nil, &ConfigError{Msg: "primary provider requires EMBEDDING_BASE_URL"}
		}
		if cfg.APIKey == "" {
			return nil, &ConfigError{Msg: "primary provider requires EMBEDDING_API_KEY"}
		}
		if cfg.Model == "" {
			return nil, &ConfigError{Msg: "primary provider requires EMBEDDING_MODEL"}
		}
		if cfg.VectorSize <= 0 {
			return nil, &ConfigError{Msg: "primary provider requires a positive EMBEDDING_VECTOR_SIZE"}
		}
		return NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.VectorSize), nil
	case ProviderMock:
		return NewMock(cfg.Model), nil
	default:
		return nil, &ConfigError{Msg: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}

// EmbedText embeds a single text as a one-element batch.
func EmbedText(ctx context.Context, p Provider, text string) ([]float32, error) {
	batch, err := p.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(batch.Vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(batch.Vectors))
	}
	return batch.Vectors[0], nil
}
