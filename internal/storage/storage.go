// Package storage defines the persistence interface for documents and chunks.
package storage

import (
	"context"

	"github.com/hyperjump/kioku/internal/models"
)

// Storage persists document records and chunk text. Embeddings are not stored
// here; they live in the vector index and its snapshot.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// DeleteDocument removes the record and reports whether it existed.
	DeleteDocument(ctx context.Context, id string) (bool, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	// ListDocumentIDsBySource returns the IDs of documents indexed from source,
	// oldest first.
	ListDocumentIDsBySource(ctx context.Context, source string) ([]string, error)

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, docID string, chunkIndex int) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) (int, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountDocumentsByType(ctx context.Context) (map[string]int64, error)

	Close() error
}
