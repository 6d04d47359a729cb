package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/cocodeai/cocode/pkg/models"
)

// Embedder produces a vector embedding for a query string. Implementations
// wrap whatever embedding provider the caller configured; the retriever
// itself is provider-agnostic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers hybrid code-search queries by running BM25, vector,
// tag/symbol, and recent-files lookups against a CodeIndex and fusing the
// four ranked lists with Reciprocal Rank Fusion.
type Retriever struct {
	index    *CodeIndex
	embedder Embedder
	recent   *RecentFiles
}

// New builds a Retriever over index. embedder may be nil, in which case
// vector search is skipped and fusion falls back to the remaining sources.
func New(index *CodeIndex, embedder Embedder, recent *RecentFiles) *Retriever {
	if recent == nil {
		recent = NewRecentFiles(DefaultRecentCapacity)
	}
	return &Retriever{index: index, embedder: embedder, recent: recent}
}

// Recent exposes the retriever's recent-files LRU so callers can record
// edits/views as they happen.
func (r *Retriever) Recent() *RecentFiles { return r.recent }

// Search runs the hybrid pipeline for query, fusing up to contextLength-scaled
// results. contextLength <= 0 uses the default cap of 20.
func (r *Retriever) Search(ctx context.Context, query string, contextLength int) ([]models.SearchResult, error) {
	cfg := ConfigForQuery(query)
	nFinal := CalculateNFinal(contextLength)
	// Retrieve generously per-source before fusion so RRF has enough of a
	// tail to rank against; final truncation happens after fusing.
	perSourceLimit := nFinal * 4

	bm25Results, err := r.index.SearchBM25(ctx, bm25Query(query), perSourceLimit)
	if err != nil {
		return nil, fmt.Errorf("search: bm25: %w", err)
	}

	var vectorResults []models.SearchResult
	if r.embedder != nil {
		embedding, err := r.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search: embed query: %w", err)
		}
		vectorResults, err = r.index.SearchVector(ctx, embedding, perSourceLimit)
		if err != nil {
			return nil, fmt.Errorf("search: vector: %w", err)
		}
	}

	var snippetResults []models.SearchResult
	if symbol, ok := symbolFromQuery(query); ok {
		snippetResults, err = r.index.SearchTags(ctx, symbol, perSourceLimit)
		if err != nil {
			return nil, fmt.Errorf("search: tags: %w", err)
		}
	}

	recentResults := r.recentAsResults(perSourceLimit)

	fused := FuseAll(bm25Results, vectorResults, snippetResults, recentResults, cfg, nFinal)
	ApplyRecencyBoost(fused, cfg)
	return fused, nil
}

// recentAsResults turns the recent-files LRU into a ranked SearchResult
// list by pulling each file's most recent chunk from the index, most
// recently touched first.
func (r *Retriever) recentAsResults(limit int) []models.SearchResult {
	refs := r.recent.Recent(limit)
	results := make([]models.SearchResult, 0, len(refs))
	for _, ref := range refs {
		// A ref carries file+chunk identity directly; reconstruct a minimal
		// chunk stub so the fusion stage has a stable ID to key on even
		// without re-reading chunk content from the index.
		results = append(results, models.SearchResult{
			Chunk: models.CodeChunk{
				ID:         ref.ChunkID,
				FilePath:   ref.FilePath,
				ModifiedAt: ref.ModifiedAt,
			},
			ScoreType: models.ScoreRecent,
		})
	}
	return results
}

// IndexFile extracts chunks' tags, embeds each chunk if an embedder is
// configured, and upserts everything into the backing CodeIndex.
func (r *Retriever) IndexFile(ctx context.Context, chunks []models.CodeChunk) error {
	for _, chunk := range chunks {
		tags := ExtractTags(chunk)

		var embedding []float32
		if r.embedder != nil {
			emb, err := r.embedder.Embed(ctx, chunk.Content)
			if err != nil {
				return fmt.Errorf("index file: embed chunk %s: %w", chunk.ID, err)
			}
			embedding = emb
		}

		if err := r.index.Upsert(ctx, chunk, embedding, tags); err != nil {
			return fmt.Errorf("index file: %w", err)
		}
	}
	return nil
}

// BuildRepoMap constructs the PageRank-ranked repo map over every indexed
// file, boosting chatFiles (files currently in the model's context) in the
// personalization vector, and renders it within tokenBudget.
func (r *Retriever) BuildRepoMap(ctx context.Context, chatFiles map[string]struct{}, mentionedIdents map[string]struct{}, tokenBudget int) (string, error) {
	files, err := r.index.AllFiles(ctx)
	if err != nil {
		return "", fmt.Errorf("build repo map: %w", err)
	}

	graph := NewDependencyGraph()
	for _, file := range files {
		tags, err := r.index.AllTagsForFile(ctx, file)
		if err != nil {
			return "", fmt.Errorf("build repo map: tags for %s: %w", file, err)
		}
		graph.AddFileTags(file, tags)
	}
	graph.BuildEdges(chatFiles, mentionedIdents)

	personalization := graph.BuildPersonalization(chatFiles)
	ranker := DefaultPageRanker()
	fileRanks := ranker.Rank(graph, personalization)
	ranked := ranker.DistributeToDefinitions(graph, fileRanks)

	return RenderRepoMap(ranked, tokenBudget), nil
}

// bm25Query strips type:/name:/file:/path: prefixes from query before
// handing it to FTS5, which has no notion of that syntax.
func bm25Query(query string) string {
	fields := strings.Fields(query)
	var kept []string
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "type:"), strings.HasPrefix(f, "name:"),
			strings.HasPrefix(f, "file:"), strings.HasPrefix(f, "path:"):
			kept = append(kept, strings.SplitN(f, ":", 2)[1])
		default:
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return query
	}
	return strings.Join(kept, " ")
}

// symbolFromQuery extracts the target symbol name for exact tag lookup:
// from name:/type: syntax if present, or the bare query itself if it looks
// like a single identifier.
func symbolFromQuery(query string) (string, bool) {
	for _, prefix := range []string{"name:", "type:"} {
		if idx := strings.Index(query, prefix); idx >= 0 {
			rest := query[idx+len(prefix):]
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				return fields[0], true
			}
		}
	}
	if IsIdentifierQuery(query) {
		return strings.TrimSpace(query), true
	}
	return "", false
}
