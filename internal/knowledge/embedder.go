package knowledge

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig configures an OpenAI-compatible embedding endpoint. TEI and
// other local servers speaking the same API work as well.
type EmbedderConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	BatchSize int
}

// Validate checks the required fields.
func (c EmbedderConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: embedder base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: embedder model required", ErrInvalidConfig)
	}
	return nil
}

// NewEmbedder creates a langchaingo embedder for cfg.
func NewEmbedder(cfg EmbedderConfig) (embeddings.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token := cfg.APIKey
	if token == "" {
		// langchaingo refuses an empty token even for servers that ignore it.
		token = "unused"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	e, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return e, nil
}
