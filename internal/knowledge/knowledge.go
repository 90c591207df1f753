package knowledge

import (
	"context"
	"errors"
)

var (
	// ErrEmptyQuery is returned when Query is called without text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrInvalidConfig indicates an unusable store or embedder configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Metadata keys set on every indexed chunk.
const (
	MetaTitle  = "title"
	MetaSource = "source"
	MetaChunk  = "chunk"
)

// Document is one corpus entry returned by a query.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Score is the cosine similarity to the query, set on query results.
	Score float32 `json:"score,omitempty"`
}

// Corpus answers free-text queries against the documentation.
type Corpus interface {
	Query(ctx context.Context, text string, limit int) ([]Document, error)
}

// Embedder produces vectors for documents and queries. It matches
// langchaingo's embeddings.Embedder.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
