package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/sanitize"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/knowledge"

// StoreConfig configures the chromem-go collection.
type StoreConfig struct {
	// Path is the persistence directory. Empty keeps the corpus in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Collection is reduced to [a-z0-9_] and defaults to "knowledge".
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *StoreConfig) ApplyDefaults() {
	c.Collection = sanitize.Identifier(c.Collection)
	if c.Collection == sanitize.DefaultIdentifier {
		c.Collection = "knowledge"
	}
}

// Store is a chromem-go backed Corpus.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	logger     *zap.Logger
	tracer     trace.Tracer
}

var _ Corpus = (*Store)(nil)

// NewStore opens (or creates) the corpus collection.
func NewStore(cfg StoreConfig, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("knowledge store initialized",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", collection.Count()))

	return &Store{
		db:         db,
		collection: collection,
		embedder:   embedder,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert embeds and stores docs. Documents with an existing ID are replaced.
func (s *Store) Upsert(ctx context.Context, docs []Document) error {
	ctx, span := s.tracer.Start(ctx, "knowledge.upsert",
		trace.WithAttributes(attribute.Int("documents.count", len(docs))))
	defer span.End()

	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document at index %d has no id", i)
		}
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		meta := make(map[string]string, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta[MetaTitle] = d.Title
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}

	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}
	s.logger.Debug("documents upserted", zap.Int("count", len(docs)))
	return nil
}

// DeleteSource removes every chunk indexed from source.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	if source == "" {
		return nil
	}
	if err := s.collection.Delete(ctx, map[string]string{MetaSource: source}, nil); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", source, err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Query returns up to limit documents ranked by similarity to text.
func (s *Store) Query(ctx context.Context, text string, limit int) ([]Document, error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.query",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []Document{}, nil
	}
	if limit > count {
		limit = count
	}

	results, err := s.collection.Query(ctx, text, limit, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying corpus: %w", err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Title:    r.Metadata[MetaTitle],
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    r.Similarity,
		}
	}
	span.SetAttributes(attribute.Int("results.count", len(docs)))
	return docs, nil
}
