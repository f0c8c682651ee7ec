// Package embedding defines the embedding provider contract and implementations.
//
// The engine treats embedding generation as an injected capability: any
// backend that maps text to a fixed-dimensional vector can be plugged in.
// Vectors are expected unit-normalized; the engine re-normalizes with
// ValidateAndNormalize before storing or searching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Dimensions is fixed for the
// lifetime of the embedder; mixing embedders with different dimensions inside
// one index is rejected at indexing time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
