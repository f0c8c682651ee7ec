package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db", "documents.db"),
			VectorIndexPath: filepath.Join(dir, "indices", "vectors.bin"),
		},
	}
	config.ApplyDefaults(cfg)
	cfg.Chunking.ChunkSize = 8
	return cfg
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEngine_IndexAndQuery(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	ctx := context.Background()

	source := writeFixture(t, "note.txt", strings.Repeat("alpha beta gamma delta ", 4))
	docID, err := eng.IndexDocument(ctx, source, models.TypeAuto)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := eng.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Type != models.TypeText {
		t.Errorf("auto detection: type = %s, want text", doc.Type)
	}

	resp, err := eng.Query(ctx, "alpha beta", 3)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total == 0 {
		t.Fatal("expected results")
	}
	if resp.Results[0].DocumentID != docID {
		t.Errorf("top result from %s, want %s", resp.Results[0].DocumentID, docID)
	}
	if resp.Results[0].Source != source {
		t.Errorf("source = %s", resp.Results[0].Source)
	}
}

func TestEngine_PersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	source := writeFixture(t, "note.txt", "one two three four five six seven eight nine ten")

	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	docID, err := eng.IndexDocument(ctx, source, models.TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}

	// The mock embedder is deterministic, so the reopened engine answers the
	// same queries from the restored snapshot.
	eng2, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	defer eng2.Close()

	doc, err := eng2.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := eng2.Query(ctx, "one two", doc.ChunkCount)
	if err != nil {
		t.Fatal(err)
	}
	if resp.IndexEmpty {
		t.Fatal("snapshot not restored")
	}
	if resp.Total != doc.ChunkCount {
		t.Errorf("got %d results, want %d restored chunks", resp.Total, doc.ChunkCount)
	}
}

func TestEngine_ReopenDropsDocumentMissingFromSnapshot(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	sourceA := writeFixture(t, "a.txt", "apple banana cherry date elder fig grape melon")
	sourceB := writeFixture(t, "b.txt", "rocket engine thrust nozzle turbine fuel pump valve")

	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	docA, err := eng.IndexDocument(ctx, sourceA, models.TypeText)
	if err != nil {
		t.Fatal(err)
	}

	// Snapshot state as of one document, as if the process crashed after the
	// second commit but before its snapshot write.
	stale, err := os.ReadFile(cfg.Storage.VectorIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	docB, err := eng.IndexDocument(ctx, sourceB, models.TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Storage.VectorIndexPath, stale, 0644); err != nil {
		t.Fatal(err)
	}

	eng2, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	defer eng2.Close()

	// The document without vectors is gone; the intact one survives.
	if _, err := eng2.GetDocument(ctx, docB); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("document without vectors should be dropped, got err=%v", err)
	}
	doc, err := eng2.GetDocument(ctx, docA)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ChunkCount != eng2.index.Size() {
		t.Errorf("chunk_count %d != %d live entries", doc.ChunkCount, eng2.index.Size())
	}
	stats, err := eng2.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("TotalDocuments = %d, want 1", stats.TotalDocuments)
	}
	if int(stats.TotalChunks) != doc.ChunkCount {
		t.Errorf("TotalChunks = %d, want %d", stats.TotalChunks, doc.ChunkCount)
	}
}

func TestEngine_ReopenDropsVectorsWithoutDocument(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	sourceA := writeFixture(t, "a.txt", "apple banana cherry date elder fig grape melon")
	sourceB := writeFixture(t, "b.txt", "rocket engine thrust nozzle turbine fuel pump valve")

	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	docA, err := eng.IndexDocument(ctx, sourceA, models.TypeText)
	if err != nil {
		t.Fatal(err)
	}
	docB, err := eng.IndexDocument(ctx, sourceB, models.TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}

	// Remove one document's rows behind the engine's back, leaving its
	// vectors orphaned in the snapshot.
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.DeleteChunksByDocumentID(ctx, docB); err != nil {
		t.Fatal(err)
	}
	if _, err := store.DeleteDocument(ctx, docB); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	eng2, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	defer eng2.Close()

	doc, err := eng2.GetDocument(ctx, docA)
	if err != nil {
		t.Fatal(err)
	}
	if eng2.index.Size() != doc.ChunkCount {
		t.Errorf("index holds %d entries, want %d from the surviving document", eng2.index.Size(), doc.ChunkCount)
	}
	resp, err := eng2.Query(ctx, "rocket engine thrust", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Results {
		if r.DocumentID == docB {
			t.Errorf("orphaned vectors still searchable: %+v", r)
		}
	}
}

func TestEngine_ReopenWithDifferentDimensionsFails(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	source := writeFixture(t, "note.txt", "one two three four five six")

	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.IndexDocument(ctx, source, models.TypeText); err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := New(cfg, embedding.NewMockEmbedder(64)); err == nil {
		t.Fatal("expected dimension mismatch on reopen")
	}
}

func TestEngine_DeleteDocument(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	ctx := context.Background()

	source := writeFixture(t, "note.txt", "one two three four five six")
	docID, err := eng.IndexDocument(ctx, source, models.TypeText)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := eng.DeleteDocument(ctx, docID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := eng.GetDocument(ctx, docID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	resp, err := eng.Query(ctx, "one two", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IndexEmpty {
		t.Error("index should be empty after deleting the only document")
	}

	ok, err = eng.DeleteDocument(ctx, "no-such-id")
	if err != nil || ok {
		t.Errorf("unknown id: ok=%v err=%v", ok, err)
	}
}

func TestEngine_DeleteBySourceAndStats(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	ctx := context.Background()

	source := writeFixture(t, "note.txt", "one two three four five six seven eight")
	if _, err := eng.IndexDocument(ctx, source, models.TypeText); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.IndexDocument(ctx, source, models.TypeText); err != nil {
		t.Fatal(err)
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 2 {
		t.Errorf("TotalDocuments = %d", stats.TotalDocuments)
	}
	if stats.ByType["text"] != 2 {
		t.Errorf("ByType = %v", stats.ByType)
	}

	n, err := eng.DeleteBySource(ctx, source)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	docs, err := eng.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("%d documents left", len(docs))
	}
}
