// Package query runs semantic retrieval over the vector index and composes
// responses with source attribution.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// Engine answers queries against the indexed corpus.
type Engine struct {
	storage  storage.Storage
	embedder embedding.Embedder
	index    vector.Index
	config   *config.QueryConfig
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a query engine with the given dependencies.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	cfg *config.QueryConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		storage:  store,
		embedder: embedder,
		index:    index,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// QueryOption adjusts a single Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	typeFilter models.DocumentType
	fusion     bool
}

// WithTypeFilter restricts results to documents of the given type.
func WithTypeFilter(t models.DocumentType) QueryOption {
	return func(o *queryOptions) { o.typeFilter = t }
}

// WithFusion retrieves with the original query plus simple rephrasings and
// fuses the deduplicated results.
func WithFusion() QueryOption {
	return func(o *queryOptions) { o.fusion = true }
}

// Query embeds text, searches the vector index, and resolves each hit to its
// chunk text and source document. topK 0 means the configured default. An
// empty corpus yields a response with IndexEmpty set, never an error.
func (e *Engine) Query(ctx context.Context, text string, topK int, opts ...QueryOption) (*models.QueryResponse, error) {
	start := time.Now()

	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", models.ErrInvalidArgument)
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative, got %d", models.ErrInvalidArgument, topK)
	}
	if o.typeFilter != "" && (o.typeFilter == models.TypeAuto || !o.typeFilter.Valid()) {
		return nil, fmt.Errorf("%w: invalid type filter %q", models.ErrInvalidArgument, o.typeFilter)
	}
	if topK == 0 {
		topK = e.config.DefaultTopK
	}
	if e.config.MaxTopK > 0 && topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}

	// An empty index is answered before touching the embedder, so a query on
	// a fresh store works even when no model is loaded.
	if e.index.Size() == 0 {
		return &models.QueryResponse{
			Query:      text,
			Results:    []*models.QueryResult{},
			Total:      0,
			QueryTime:  time.Since(start).Milliseconds(),
			IndexEmpty: true,
		}, nil
	}

	// Over-fetch so reranking and type filtering have candidates to work with.
	candidateK := topK
	if e.config.RerankOrDefault() || o.typeFilter != "" {
		candidateK = topK * 2
	}
	hits, err := e.collectHits(ctx, text, candidateK, o.fusion)
	if err != nil {
		return nil, err
	}

	results, err := e.resolve(ctx, hits, o.typeFilter)
	if err != nil {
		return nil, err
	}

	if e.config.RerankOrDefault() {
		rerankByTermOverlap(text, results)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	for i, r := range results {
		r.Rank = i + 1
	}

	if e.logger != nil {
		e.logger.Debug("query answered",
			zap.String("query", text),
			zap.Int("top_k", topK),
			zap.Int("results", len(results)),
			zap.Duration("took", time.Since(start)),
		)
	}

	return &models.QueryResponse{
		Query:     text,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// collectHits searches the index for text, and in fusion mode also for each
// query variation, deduplicating across the passes.
func (e *Engine) collectHits(ctx context.Context, text string, candidateK int, fusion bool) ([]vector.Hit, error) {
	hits, err := e.searchText(ctx, text, candidateK)
	if err != nil {
		return nil, err
	}
	if !fusion {
		return hits, nil
	}
	groups := [][]vector.Hit{hits}
	for _, variation := range queryVariations(text) {
		more, err := e.searchText(ctx, variation, candidateK)
		if err != nil {
			return nil, err
		}
		groups = append(groups, more)
	}
	return fuseHits(groups), nil
}

func (e *Engine) searchText(ctx context.Context, text string, topK int) ([]vector.Hit, error) {
	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := embedding.ValidateAndNormalize(emb); err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	hits, err := e.index.Search(ctx, emb, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// queryVariations returns simple rephrasings of the query for fused retrieval.
func queryVariations(text string) []string {
	return []string{
		fmt.Sprintf("What is %s?", text),
		fmt.Sprintf("Explain %s", text),
		fmt.Sprintf("Information about %s", text),
	}
}

// fuseHits merges hits from several retrieval passes, keeping the best score
// per chunk, ordered like a single search.
func fuseHits(groups [][]vector.Hit) []vector.Hit {
	type chunkKey struct {
		doc   string
		chunk int
	}
	best := make(map[chunkKey]vector.Hit)
	for _, hits := range groups {
		for _, h := range hits {
			k := chunkKey{h.DocumentID, h.ChunkIndex}
			if cur, ok := best[k]; !ok || h.Score > cur.Score {
				best[k] = h
			}
		}
	}
	fused := make([]vector.Hit, 0, len(best))
	for _, h := range best {
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].DocumentID != fused[j].DocumentID {
			return fused[i].DocumentID < fused[j].DocumentID
		}
		return fused[i].ChunkIndex < fused[j].ChunkIndex
	})
	return fused
}

// resolve turns raw hits into attributed results. Hits whose chunk or
// document rows are missing are skipped rather than failing the query; a
// concurrent delete can race the search. A non-empty typeFilter drops hits
// from documents of other types.
func (e *Engine) resolve(ctx context.Context, hits []vector.Hit, typeFilter models.DocumentType) ([]*models.QueryResult, error) {
	results := make([]*models.QueryResult, 0, len(hits))
	docs := make(map[string]*models.Document)

	for _, hit := range hits {
		doc, seen := docs[hit.DocumentID]
		if !seen {
			var err error
			doc, err = e.storage.GetDocument(ctx, hit.DocumentID)
			if errors.Is(err, models.ErrNotFound) {
				docs[hit.DocumentID] = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			docs[hit.DocumentID] = doc
		}
		if doc == nil {
			continue
		}
		if typeFilter != "" && doc.Type != typeFilter {
			continue
		}

		chunk, err := e.storage.GetChunk(ctx, hit.DocumentID, hit.ChunkIndex)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		results = append(results, &models.QueryResult{
			DocumentID: hit.DocumentID,
			Source:     doc.Source,
			ChunkIndex: hit.ChunkIndex,
			ChunkText:  chunk.Content,
			Score:      hit.Score,
		})
	}
	return results, nil
}

// ComposeContext joins the result chunks into a single attributed block of
// text suitable for prompting a local model. maxChars 0 means no limit.
func ComposeContext(results []*models.QueryResult, maxChars int) string {
	var b strings.Builder
	for _, r := range results {
		section := fmt.Sprintf("[%s #%d]\n%s\n\n", r.Source, r.ChunkIndex, r.ChunkText)
		if maxChars > 0 && b.Len()+len(section) > maxChars {
			break
		}
		b.WriteString(section)
	}
	return strings.TrimRight(b.String(), "\n")
}
