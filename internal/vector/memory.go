package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kioku/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force inner product
// search. Exact and adequate for single-device corpora (thousands to low
// millions of chunks). Mutations are serialized; searches run concurrently
// under a read lock, so a search sees documents either fully or not at all.
type MemoryIndex struct {
	dimensions int
	entries    []memoryEntry
	byDoc      map[string][]int // docID -> positions in entries
	mu         sync.RWMutex
}

type memoryEntry struct {
	docID      string
	chunkIndex int
	vec        []float32
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", models.ErrInvalidArgument, dimensions)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		byDoc:      make(map[string][]int),
	}, nil
}

// InsertBatch adds all entries for docID atomically. The whole batch is
// validated before any entry becomes visible.
func (m *MemoryIndex) InsertBatch(ctx context.Context, docID string, entries []Entry) error {
	if docID == "" {
		return fmt.Errorf("%w: empty document id", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if len(e.Embedding) != m.dimensions {
			return fmt.Errorf("%w: embedding dimension %d, index expects %d", models.ErrInvalidArgument, len(e.Embedding), m.dimensions)
		}
		if seen[e.ChunkIndex] {
			return fmt.Errorf("%w: duplicate chunk index %d in batch", models.ErrInvalidArgument, e.ChunkIndex)
		}
		seen[e.ChunkIndex] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byDoc[docID]; exists {
		return fmt.Errorf("%w: document %s already indexed", models.ErrInvalidArgument, docID)
	}
	positions := make([]int, 0, len(entries))
	for _, e := range entries {
		vec := make([]float32, m.dimensions)
		copy(vec, e.Embedding)
		positions = append(positions, len(m.entries))
		m.entries = append(m.entries, memoryEntry{docID: docID, chunkIndex: e.ChunkIndex, vec: vec})
	}
	m.byDoc[docID] = positions
	return nil
}

// DeleteDocument removes all entries for docID. Idempotent.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, docID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	positions, ok := m.byDoc[docID]
	if !ok {
		return 0, nil
	}
	kept := make([]memoryEntry, 0, len(m.entries)-len(positions))
	for _, e := range m.entries {
		if e.docID != docID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	delete(m.byDoc, docID)
	m.reindexLocked()
	return len(positions), nil
}

// reindexLocked rebuilds byDoc positions after entries were compacted.
func (m *MemoryIndex) reindexLocked() {
	for id := range m.byDoc {
		m.byDoc[id] = m.byDoc[id][:0]
	}
	for i, e := range m.entries {
		m.byDoc[e.docID] = append(m.byDoc[e.docID], i)
	}
}

// Search scans all live entries and returns the top-k by inner product
// (cosine similarity for unit-normalized vectors), descending; ties are
// broken by (document ID, chunk index) ascending for determinism.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: top-k must be non-negative, got %d", models.ErrInvalidArgument, topK)
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d", models.ErrInvalidArgument, len(query), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK == 0 || len(m.entries) == 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, len(m.entries))
	for i, e := range m.entries {
		hits[i] = Hit{
			DocumentID: e.docID,
			ChunkIndex: e.chunkIndex,
			Score:      InnerProduct(query, e.vec),
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Snapshot format: dimensions (4), entry count (4), then per entry:
// docID length (4), docID bytes, chunk index (4), vector (dimensions*4 bytes).
// All values little-endian.

// Save persists the index to path, creating parent directories as needed.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create snapshot dir: %v", models.ErrStorage, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create snapshot: %v", models.ErrStorage, err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("%w: write dimensions: %v", models.ErrStorage, err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return fmt.Errorf("%w: write count: %v", models.ErrStorage, err)
	}
	for _, e := range m.entries {
		idBytes := []byte(e.docID)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("%w: write id len: %v", models.ErrStorage, err)
		}
		if _, err := f.Write(idBytes); err != nil {
			return fmt.Errorf("%w: write id: %v", models.ErrStorage, err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(e.chunkIndex)); err != nil {
			return fmt.Errorf("%w: write chunk index: %v", models.ErrStorage, err)
		}
		if _, err := f.Write(float32SliceToBytes(e.vec)); err != nil {
			return fmt.Errorf("%w: write vector: %v", models.ErrStorage, err)
		}
	}
	return nil
}

// Load reads the snapshot at path and replaces the in-memory contents.
// A snapshot recorded with a different dimension is rejected. If the file
// does not exist, the index is unchanged and no error is returned.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: open snapshot: %v", models.ErrStorage, err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("%w: read dimensions: %v", models.ErrStorage, err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: snapshot dimension %d, index expects %d", models.ErrInvalidArgument, dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: read count: %v", models.ErrStorage, err)
	}
	// Declared sizes are checked against the file size before any allocation,
	// so a corrupted header cannot drive huge allocations.
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat snapshot: %v", models.ErrStorage, err)
	}
	minEntrySize := int64(8 + m.dimensions*4)
	if int64(n) > fi.Size()/minEntrySize {
		return fmt.Errorf("%w: snapshot declares %d entries but holds at most %d", models.ErrStorage, n, fi.Size()/minEntrySize)
	}
	entries := make([]memoryEntry, 0, n)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("%w: read id len: %v", models.ErrStorage, err)
		}
		if int64(idLen) > fi.Size() {
			return fmt.Errorf("%w: snapshot declares id of %d bytes in a %d byte file", models.ErrStorage, idLen, fi.Size())
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return fmt.Errorf("%w: read id: %v", models.ErrStorage, err)
		}
		var chunkIndex uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkIndex); err != nil {
			return fmt.Errorf("%w: read chunk index: %v", models.ErrStorage, err)
		}
		if _, err := io.ReadFull(f, vecBuf); err != nil {
			return fmt.Errorf("%w: read vector: %v", models.ErrStorage, err)
		}
		entries = append(entries, memoryEntry{
			docID:      string(idBytes),
			chunkIndex: int(chunkIndex),
			vec:        bytesToFloat32Slice(vecBuf),
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.byDoc = make(map[string][]int, len(entries))
	m.reindexLocked()
	return nil
}

// DocumentEntryCounts returns the number of live entries per document ID.
func (m *MemoryIndex) DocumentEntryCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int, len(m.byDoc))
	for id, positions := range m.byDoc {
		counts[id] = len(positions)
	}
	return counts
}

// Size returns the number of live entries.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Dimensions returns the fixed embedding dimension of the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
