// Package engine wires storage, embedding, the vector index, the registry,
// and the query layer into a single handle over one data directory.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/query"
	"github.com/hyperjump/kioku/internal/registry"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// Engine is the top-level handle. All operations are safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Storage
	embedder embedding.Embedder
	index    vector.Index
	registry *registry.Registry
	query    *query.Engine

	saveMu sync.Mutex
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	extractor *extract.Extractor
}

// WithLogger sets a logger shared by all components.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExtractor replaces the default extractor, e.g. to plug in OCR or
// transcription providers.
func WithExtractor(ex *extract.Extractor) Option {
	return func(o *options) { o.extractor = ex }
}

// New opens the document database, restores the vector snapshot if one
// exists, and wires up the registry and query engine. The embedder's
// dimensionality must match any existing snapshot. Documents whose recorded
// chunk counts disagree with the restored vectors are dropped, so the chunk
// count invariant holds even after a crash between commit and snapshot write.
func New(cfg *config.Config, embedder embedding.Embedder, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.extractor == nil {
		o.extractor = extract.New()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	index, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := index.Load(cfg.Storage.VectorIndexPath); err != nil {
		store.Close()
		return nil, fmt.Errorf("load vector snapshot: %w", err)
	}

	removed, err := reconcile(context.Background(), store, index, o.logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("reconcile on load: %w", err)
	}
	if removed > 0 {
		if err := index.Save(cfg.Storage.VectorIndexPath); err != nil {
			store.Close()
			return nil, fmt.Errorf("save reconciled snapshot: %w", err)
		}
	}

	var regOpts []registry.Option
	var queryOpts []query.Option
	if o.logger != nil {
		regOpts = append(regOpts, registry.WithLogger(o.logger))
		queryOpts = append(queryOpts, query.WithLogger(o.logger))
	}

	reg, err := registry.New(store, embedder, index, o.extractor, cfg.Chunking.ChunkSize, regOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		logger:   o.logger,
		store:    store,
		embedder: embedder,
		index:    index,
		registry: reg,
		query:    query.NewEngine(store, embedder, index, &cfg.Query, queryOpts...),
	}

	if o.logger != nil {
		o.logger.Info("engine opened",
			zap.String("database", cfg.Storage.DatabasePath),
			zap.String("snapshot", cfg.Storage.VectorIndexPath),
			zap.Int("vectors", index.Size()),
			zap.Int("dimensions", embedder.Dimensions()),
		)
	}
	return e, nil
}

// reconcile drops documents whose recorded chunk count disagrees with the
// live vector entries, and vector entries whose document record is gone.
// A crash between the database commit and the snapshot write leaves this
// kind of skew; dropped sources can simply be indexed again. Returns the
// number of documents removed on either side.
func reconcile(ctx context.Context, store storage.Storage, index vector.Index, logger *zap.Logger) (int, error) {
	counts := index.DocumentEntryCounts()

	var docs []*models.Document
	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		page, err := store.ListDocuments(ctx, offset, pageSize)
		if err != nil {
			return 0, err
		}
		docs = append(docs, page...)
		if len(page) < pageSize {
			break
		}
	}

	removed := 0
	for _, doc := range docs {
		live := counts[doc.ID]
		delete(counts, doc.ID)
		if live == doc.ChunkCount {
			continue
		}
		if _, err := index.DeleteDocument(ctx, doc.ID); err != nil {
			return removed, err
		}
		if _, err := store.DeleteChunksByDocumentID(ctx, doc.ID); err != nil {
			return removed, err
		}
		if _, err := store.DeleteDocument(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
		if logger != nil {
			logger.Warn("dropped document with stale vector state",
				zap.String("id", doc.ID),
				zap.String("source", doc.Source),
				zap.Int("chunk_count", doc.ChunkCount),
				zap.Int("live_entries", live),
			)
		}
	}

	// Vector entries whose document record is gone.
	for id := range counts {
		if _, err := index.DeleteDocument(ctx, id); err != nil {
			return removed, err
		}
		removed++
		if logger != nil {
			logger.Warn("dropped vector entries without document record", zap.String("id", id))
		}
	}
	return removed, nil
}

// IndexDocument indexes a file and persists the vector snapshot. On a
// snapshot write failure the document is already committed; the returned id
// is valid and Save can be retried.
func (e *Engine) IndexDocument(ctx context.Context, source string, typ models.DocumentType) (string, error) {
	docID, err := e.registry.IndexDocument(ctx, source, typ)
	if err != nil {
		return "", err
	}
	if err := e.Save(); err != nil {
		return docID, err
	}
	return docID, nil
}

// Query answers a semantic query. topK 0 means the configured default.
// Options restrict results to a document type or enable fused retrieval.
func (e *Engine) Query(ctx context.Context, text string, topK int, opts ...query.QueryOption) (*models.QueryResponse, error) {
	return e.query.Query(ctx, text, topK, opts...)
}

// DeleteDocument removes a document and persists the snapshot. Returns false
// without error if the id is unknown.
func (e *Engine) DeleteDocument(ctx context.Context, id string) (bool, error) {
	existed, err := e.registry.DeleteDocument(ctx, id)
	if err != nil || !existed {
		return existed, err
	}
	return true, e.Save()
}

// DeleteBySource removes every document indexed from source and persists the
// snapshot. Returns the number of documents removed.
func (e *Engine) DeleteBySource(ctx context.Context, source string) (int, error) {
	n, err := e.registry.DeleteBySource(ctx, source)
	if err != nil || n == 0 {
		return n, err
	}
	return n, e.Save()
}

// GetDocument returns the document record for id.
func (e *Engine) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return e.registry.GetDocument(ctx, id)
}

// ListDocuments returns document records, newest first.
func (e *Engine) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	return e.registry.ListDocuments(ctx, offset, limit)
}

// Stats returns corpus totals and the per-type document distribution.
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	return e.registry.Stats(ctx)
}

// Save writes the vector snapshot. Serialized so concurrent mutations do not
// interleave partial snapshot writes.
func (e *Engine) Save() error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(e.cfg.Storage.VectorIndexPath), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := e.index.Save(e.cfg.Storage.VectorIndexPath); err != nil {
		return fmt.Errorf("save vector snapshot: %w", err)
	}
	return nil
}

// Close saves the snapshot and releases all resources.
func (e *Engine) Close() error {
	saveErr := e.Save()
	if err := e.index.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	if err := e.store.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	if err := e.embedder.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	return saveErr
}
