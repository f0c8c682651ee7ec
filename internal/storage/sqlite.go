package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kioku/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", models.ErrStorage, err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", models.ErrStorage, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %v", models.ErrStorage, err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", models.ErrStorage, err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		type TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (document_id, chunk_index)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document record.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, source, type, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Source, string(doc.Type), doc.ChunkCount, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert document: %v", models.ErrStorage, err)
	}
	return nil
}

// GetDocument returns a document by ID, or ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, type, chunk_count, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Source, &typ, &doc.ChunkCount, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %v", models.ErrStorage, err)
	}
	doc.Type = models.DocumentType(typ)
	return &doc, nil
}

// DeleteDocument removes a document record and reports whether it existed.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete document: %v", models.ErrStorage, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ListDocuments returns documents ordered by creation time descending.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, type, chunk_count, created_at
		 FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var typ string
		if err := rows.Scan(&doc.ID, &doc.Source, &typ, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", models.ErrStorage, err)
		}
		doc.Type = models.DocumentType(typ)
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", models.ErrStorage, err)
	}
	return docs, nil
}

// ListDocumentIDsBySource returns the IDs of documents indexed from source, oldest first.
func (s *SQLiteStorage) ListDocumentIDsBySource(ctx context.Context, source string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE source = ? ORDER BY created_at, id`, source)
	if err != nil {
		return nil, fmt.Errorf("%w: list by source: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan id: %v", models.ErrStorage, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list by source: %v", models.ErrStorage, err)
	}
	return ids, nil
}

// BatchCreateChunks inserts chunk rows in a single transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (document_id, chunk_index, content, created_at)
		 VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, chunk.DocumentID, chunk.ChunkIndex, chunk.Content, chunk.CreatedAt); err != nil {
			return fmt.Errorf("%w: insert chunk %d: %v", models.ErrStorage, chunk.ChunkIndex, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit chunks: %v", models.ErrStorage, err)
	}
	return nil
}

// GetChunk returns the chunk at (docID, chunkIndex), or ErrNotFound.
func (s *SQLiteStorage) GetChunk(ctx context.Context, docID string, chunkIndex int) (*models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, chunk_index, content, created_at
		 FROM document_chunks WHERE document_id = ? AND chunk_index = ?`,
		docID, chunkIndex,
	).Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &chunk.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chunk %s/%d", models.ErrNotFound, docID, chunkIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get chunk: %v", models.ErrStorage, err)
	}
	return &chunk, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, chunk_index, content, created_at
		 FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: get chunks: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var chunks []*models.DocumentChunk
	for rows.Next() {
		var chunk models.DocumentChunk
		if err := rows.Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", models.ErrStorage, err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: get chunks: %v", models.ErrStorage, err)
	}
	return chunks, nil
}

// DeleteChunksByDocumentID removes all chunks for a document and returns the count removed.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete chunks: %v", models.ErrStorage, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count documents: %v", models.ErrStorage, err)
	}
	return count, nil
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", models.ErrStorage, err)
	}
	return count, nil
}

// CountDocumentsByType returns document counts grouped by type.
func (s *SQLiteStorage) CountDocumentsByType(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM documents GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("%w: count by type: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", models.ErrStorage, err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: count by type: %v", models.ErrStorage, err)
	}
	return counts, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
