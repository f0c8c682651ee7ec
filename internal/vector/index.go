// Package vector provides the vector index and similarity search.
package vector

import "context"

// Entry is one chunk embedding to insert, ordered within its document.
type Entry struct {
	ChunkIndex int
	Embedding  []float32
}

// Hit is a single search result. Score is the inner product with the query
// (cosine similarity for unit-normalized vectors).
type Hit struct {
	DocumentID string
	ChunkIndex int
	Score      float64
}

// Index stores (document, chunk, embedding) triples and answers top-k
// similarity searches. Implementations must make InsertBatch atomic with
// respect to Search: a concurrent search sees either all of a document's
// entries or none of them. The brute-force MemoryIndex is the exact baseline;
// an approximate index may be substituted as long as it preserves the
// ordering and top-k contracts.
type Index interface {
	// InsertBatch adds all entries for a document atomically. Rejects a
	// document ID that already has live entries and any embedding whose
	// dimension differs from the index's.
	InsertBatch(ctx context.Context, docID string, entries []Entry) error
	// DeleteDocument removes every entry for docID and returns the number
	// removed. Deleting an absent ID is a no-op, not an error.
	DeleteDocument(ctx context.Context, docID string) (int, error)
	// Search returns the min(topK, Size()) highest-scoring entries in
	// descending score order, ties broken by (document ID, chunk index)
	// ascending. topK < 0 is an error; topK == 0 returns an empty result.
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)
	// DocumentEntryCounts returns the number of live entries per document ID.
	DocumentEntryCounts() map[string]int
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}
