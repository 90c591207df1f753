package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/ignore"
	"github.com/fyrsmithlabs/autopatchd/internal/sanitize"
)

// Default chunking for documentation files.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 150
)

// Indexer loads markdown documentation into a Store, one document per chunk.
type Indexer struct {
	store    *Store
	root     string
	splitter textsplitter.TextSplitter
	logger   *zap.Logger

	mu      sync.RWMutex
	exclude *ignore.Matcher
}

// NewIndexer indexes markdown files below root into store.
func NewIndexer(store *Store, root string, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		store: store,
		root:  root,
		splitter: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(DefaultChunkSize),
			textsplitter.WithChunkOverlap(DefaultChunkOverlap),
		),
		logger: logger,
	}
}

// Root returns the indexed directory.
func (ix *Indexer) Root() string { return ix.root }

// IsIndexable reports whether path is a documentation file.
func IsIndexable(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// LoadIgnore re-reads .gitignore and .knowledgeignore from the root.
func (ix *Indexer) LoadIgnore() error {
	m, err := ignore.NewParser(nil, nil).Load(ix.root)
	if err != nil {
		return fmt.Errorf("loading ignore files: %w", err)
	}
	ix.mu.Lock()
	ix.exclude = m
	ix.mu.Unlock()
	return nil
}

// Excluded reports whether path is hidden or matched by an ignore pattern.
func (ix *Indexer) Excluded(path string, isDir bool) bool {
	rel, err := filepath.Rel(ix.root, path)
	if err != nil || rel == "." {
		return false
	}
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return true
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.exclude.Match(rel, isDir)
}

// IndexAll walks root and indexes every markdown file not excluded by the
// ignore files. It returns the number of chunks stored. Unreadable files are
// logged and skipped.
func (ix *Indexer) IndexAll(ctx context.Context) (int, error) {
	if err := ix.LoadIgnore(); err != nil {
		return 0, err
	}
	total := 0
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ix.Excluded(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsIndexable(path) {
			return nil
		}
		n, err := ix.IndexFile(ctx, path)
		if err != nil {
			ix.logger.Warn("skipping documentation file", zap.String("path", path), zap.Error(err))
			return nil
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("indexing %s: %w", ix.root, err)
	}
	ix.logger.Info("documentation indexed", zap.String("root", ix.root), zap.Int("chunks", total))
	return total, nil
}

// IndexFile replaces the chunks stored for path.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	source := ix.source(path)

	chunks, err := ix.splitter.SplitText(string(data))
	if err != nil {
		return 0, fmt.Errorf("splitting %s: %w", source, err)
	}

	if err := ix.store.DeleteSource(ctx, source); err != nil {
		return 0, err
	}

	title := titleOf(string(data), source)
	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		docs = append(docs, Document{
			ID:      source + "#" + strconv.Itoa(i),
			Title:   title,
			Content: chunk,
			Metadata: map[string]string{
				MetaSource: source,
				MetaChunk:  strconv.Itoa(i),
			},
		})
	}
	if err := ix.store.Upsert(ctx, docs); err != nil {
		return 0, err
	}
	ix.logger.Debug("file indexed", zap.String("source", source), zap.Int("chunks", len(docs)))
	return len(docs), nil
}

// Remove drops the chunks of a deleted file.
func (ix *Indexer) Remove(ctx context.Context, path string) error {
	return ix.store.DeleteSource(ctx, ix.source(path))
}

func (ix *Indexer) source(path string) string {
	rel, err := filepath.Rel(ix.root, path)
	if err != nil || !sanitize.IsWithin(ix.root, path) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// titleOf returns the first markdown heading, or the file name without extension.
func titleOf(content, source string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return t
			}
		}
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isNotExist reports whether err means the file is gone.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
