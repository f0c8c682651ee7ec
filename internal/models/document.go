// Package models defines core data structures for documents, chunks, and query results.
package models

import "time"

// DocumentType identifies which extractor converts a source into text.
type DocumentType string

const (
	// TypeAuto detects the type from the source file extension.
	TypeAuto DocumentType = "auto"
	// TypeText covers plain text and text-bearing office formats.
	TypeText DocumentType = "text"
	// TypePDF is extracted with the built-in PDF reader.
	TypePDF DocumentType = "pdf"
	// TypeImage requires an injected OCR provider.
	TypeImage DocumentType = "image"
	// TypeAudio requires an injected transcriber.
	TypeAudio DocumentType = "audio"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case TypeAuto, TypeText, TypePDF, TypeImage, TypeAudio:
		return true
	}
	return false
}

// Document is a committed document record. Immutable once committed;
// ChunkCount always equals the number of live vector entries for the document.
type Document struct {
	ID         string       `json:"id" db:"id"`
	Source     string       `json:"source" db:"source"`
	Type       DocumentType `json:"type" db:"type"`
	ChunkCount int          `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// DocumentChunk is one retrievable unit of a document, identified by
// (DocumentID, ChunkIndex). Chunks are created and deleted only in bulk
// with their document.
type DocumentChunk struct {
	DocumentID string    `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Stats summarizes the indexed corpus.
type Stats struct {
	TotalDocuments int64            `json:"total_documents"`
	TotalChunks    int64            `json:"total_chunks"`
	ByType         map[string]int64 `json:"document_types"`
}
