// Package registry owns document identity and coordinates atomic multi-chunk
// inserts and removals against the vector index.
package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/chunker"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// Registry drives indexing: extract, chunk, embed, insert vectors, then
// commit the document record. Extraction, chunking, and embedding run without
// any index-wide lock; only the vector batch insert and the final commit touch
// shared state.
type Registry struct {
	storage   storage.Storage
	embedder  embedding.Embedder
	index     vector.Index
	extractor *extract.Extractor
	chunkSize int
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry with the given dependencies.
func New(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	extractor *extract.Extractor,
	chunkSize int,
	opts ...Option,
) (*Registry, error) {
	if chunkSize <= 1 {
		return nil, fmt.Errorf("%w: chunk size must be greater than 1, got %d", models.ErrInvalidArgument, chunkSize)
	}
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder dimension %d, index dimension %d",
			models.ErrInvalidArgument, embedder.Dimensions(), index.Dimensions())
	}
	r := &Registry{
		storage:   store,
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		chunkSize: chunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// IndexDocument extracts source, chunks and embeds the text, inserts the
// vector batch, and commits the document record last. On any failure no
// document record, chunk row, or vector entry is left visible. Returns the
// new document ID. IDs are UUIDs and never reused.
func (r *Registry) IndexDocument(ctx context.Context, source string, typ models.DocumentType) (string, error) {
	text, resolvedType, err := r.extractor.Extract(ctx, source, typ)
	if err != nil {
		return "", err
	}

	chunks, err := chunker.Chunk(text, r.chunkSize)
	if err != nil {
		return "", err
	}

	docID := uuid.New().String()
	if r.logger != nil {
		r.logger.Debug("indexing document",
			zap.String("doc_id", docID),
			zap.String("source", source),
			zap.String("type", string(resolvedType)),
			zap.Int("chunks", len(chunks)),
		)
	}

	entries := make([]vector.Entry, 0, len(chunks))
	for i, chunkText := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		emb, err := r.embedder.Embed(ctx, chunkText)
		if err != nil {
			return "", fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if len(emb) != r.index.Dimensions() {
			return "", fmt.Errorf("%w: embedder returned dimension %d, index expects %d",
				models.ErrInvalidArgument, len(emb), r.index.Dimensions())
		}
		if err := embedding.ValidateAndNormalize(emb); err != nil {
			return "", fmt.Errorf("chunk %d: %w", i, err)
		}
		entries = append(entries, vector.Entry{ChunkIndex: i, Embedding: emb})
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Chunk rows first: they are invisible to search until the vector batch
	// lands, and queries resolve chunk text through them.
	chunkRows := make([]*models.DocumentChunk, len(chunks))
	for i, chunkText := range chunks {
		chunkRows[i] = &models.DocumentChunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    chunkText,
		}
	}
	if err := r.storage.BatchCreateChunks(ctx, chunkRows); err != nil {
		return "", err
	}

	if err := r.index.InsertBatch(ctx, docID, entries); err != nil {
		r.rollback(docID, false)
		return "", err
	}

	doc := &models.Document{
		ID:         docID,
		Source:     source,
		Type:       resolvedType,
		ChunkCount: len(chunks),
	}
	if err := r.storage.CreateDocument(ctx, doc); err != nil {
		r.rollback(docID, true)
		return "", err
	}

	if r.logger != nil {
		r.logger.Debug("document committed", zap.String("doc_id", docID), zap.Int("chunk_count", doc.ChunkCount))
	}
	return docID, nil
}

// rollback removes whatever partial state an aborted IndexDocument left.
// Runs on a fresh context so cancellation cannot strand partial state.
func (r *Registry) rollback(docID string, vectorsInserted bool) {
	ctx := context.Background()
	if vectorsInserted {
		if _, err := r.index.DeleteDocument(ctx, docID); err != nil && r.logger != nil {
			r.logger.Warn("rollback: vector delete failed", zap.String("doc_id", docID), zap.Error(err))
		}
	}
	if _, err := r.storage.DeleteChunksByDocumentID(ctx, docID); err != nil && r.logger != nil {
		r.logger.Warn("rollback: chunk delete failed", zap.String("doc_id", docID), zap.Error(err))
	}
}

// DeleteDocument removes the document record, its vector entries, and its
// chunk rows. Returns false without error if the id is unknown.
func (r *Registry) DeleteDocument(ctx context.Context, id string) (bool, error) {
	existed, err := r.storage.DeleteDocument(ctx, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	if _, err := r.index.DeleteDocument(ctx, id); err != nil {
		return true, err
	}
	if _, err := r.storage.DeleteChunksByDocumentID(ctx, id); err != nil {
		return true, err
	}
	if r.logger != nil {
		r.logger.Debug("document deleted", zap.String("doc_id", id))
	}
	return true, nil
}

// DeleteBySource deletes every document indexed from source and returns how
// many were removed. Used by the watcher when a file disappears or is
// re-indexed.
func (r *Registry) DeleteBySource(ctx context.Context, source string) (int, error) {
	ids, err := r.storage.ListDocumentIDsBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		ok, err := r.DeleteDocument(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// GetDocument returns the document record for id, or ErrNotFound.
func (r *Registry) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return r.storage.GetDocument(ctx, id)
}

// ListDocuments returns committed documents, newest first.
func (r *Registry) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	return r.storage.ListDocuments(ctx, offset, limit)
}

// Stats returns corpus totals and the per-type document distribution.
func (r *Registry) Stats(ctx context.Context) (*models.Stats, error) {
	docs, err := r.storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := r.storage.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	byType, err := r.storage.CountDocumentsByType(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Stats{
		TotalDocuments: docs,
		TotalChunks:    chunks,
		ByType:         byType,
	}, nil
}
