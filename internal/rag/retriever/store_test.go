package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/cocodeai/cocode/pkg/models"
)

func newTestIndex(t *testing.T) *CodeIndex {
	t.Helper()
	idx, err := OpenCodeIndex(":memory:")
	if err != nil {
		t.Fatalf("OpenCodeIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestCodeIndex_UpsertAndSearchBM25(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	chunk := models.CodeChunk{
		ID:       "c1",
		FilePath: "retry.go",
		Content:  "func computeBackoff(attempt int) time.Duration { return 0 }",
	}
	if err := idx.Upsert(ctx, chunk, nil, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := idx.SearchBM25(ctx, "computeBackoff", 10)
	if err != nil {
		t.Fatalf("SearchBM25: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c1" {
		t.Fatalf("expected 1 result for c1, got %+v", results)
	}
}

func TestCodeIndex_Upsert_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	idx.Upsert(ctx, models.CodeChunk{ID: "c1", FilePath: "a.go", Content: "alpha content"}, nil, nil)
	idx.Upsert(ctx, models.CodeChunk{ID: "c1", FilePath: "a.go", Content: "beta content"}, nil, nil)

	alpha, _ := idx.SearchBM25(ctx, "alpha", 10)
	if len(alpha) != 0 {
		t.Errorf("expected stale fts row removed, got %+v", alpha)
	}
	beta, _ := idx.SearchBM25(ctx, "beta", 10)
	if len(beta) != 1 {
		t.Errorf("expected updated content searchable, got %+v", beta)
	}
}

func TestCodeIndex_Remove(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	idx.Upsert(ctx, models.CodeChunk{ID: "c1", FilePath: "a.go", Content: "unique_marker_term"}, nil, nil)
	if err := idx.Remove(ctx, "c1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	results, _ := idx.SearchBM25(ctx, "unique_marker_term", 10)
	if len(results) != 0 {
		t.Errorf("expected no results after remove, got %+v", results)
	}
}

func TestCodeIndex_SearchVector_RanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	idx.Upsert(ctx, models.CodeChunk{ID: "close", FilePath: "a.go", Content: "a"}, []float32{1, 0, 0}, nil)
	idx.Upsert(ctx, models.CodeChunk{ID: "far", FilePath: "b.go", Content: "b"}, []float32{0, 1, 0}, nil)

	results, err := idx.SearchVector(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "close" {
		t.Fatalf("expected 'close' chunk to rank first, got %+v", results)
	}
}

func TestCodeIndex_SearchTags_DefinitionsRankAboveReferences(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	idx.Upsert(ctx, models.CodeChunk{ID: "def", FilePath: "def.go", Content: "func Widget() {}"},
		nil, []models.Tag{{ChunkID: "def", FilePath: "def.go", Name: "Widget", Kind: TagKindDef, Line: 1}})
	idx.Upsert(ctx, models.CodeChunk{ID: "ref", FilePath: "use.go", Content: "Widget()"},
		nil, []models.Tag{{ChunkID: "ref", FilePath: "use.go", Name: "Widget", Kind: TagKindRef, Line: 1}})

	results, err := idx.SearchTags(ctx, "Widget", 10)
	if err != nil {
		t.Fatalf("SearchTags: %v", err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "def" {
		t.Fatalf("expected definition to rank first, got %+v", results)
	}
}

func TestCodeIndex_AllFiles(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	idx.Upsert(ctx, models.CodeChunk{ID: "c1", FilePath: "a.go", Content: "x"}, nil, nil)
	idx.Upsert(ctx, models.CodeChunk{ID: "c2", FilePath: "a.go", Content: "y"}, nil, nil)
	idx.Upsert(ctx, models.CodeChunk{ID: "c3", FilePath: "b.go", Content: "z"}, nil, nil)

	files, err := idx.AllFiles(ctx)
	if err != nil {
		t.Fatalf("AllFiles: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("len(files) = %d, want 2 distinct paths", len(files))
	}
}

func TestEncodeDecodeEmbedding_RoundTrips(t *testing.T) {
	original := []float32{1.5, -2.25, 0, 3.125}
	decoded := decodeEmbedding(encodeEmbedding(original))
	if len(decoded) != len(original) {
		t.Fatalf("len(decoded) = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestEncodeEmbedding_Empty(t *testing.T) {
	if encodeEmbedding(nil) != nil {
		t.Error("expected nil embedding to encode to nil bytes")
	}
}

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	if sim := cosineSimilarity(v, v); sim < 0.999 || sim > 1.001 {
		t.Errorf("cosineSimilarity(v, v) = %v, want ~1.0", sim)
	}
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	if sim := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim != 0 {
		t.Errorf("cosineSimilarity(orthogonal) = %v, want 0", sim)
	}
}

func TestCosineSimilarity_MismatchedLength(t *testing.T) {
	if sim := cosineSimilarity([]float32{1, 2}, []float32{1}); sim != 0 {
		t.Errorf("cosineSimilarity(mismatched) = %v, want 0", sim)
	}
}

func TestCodeIndex_Upsert_PreservesModifiedAt(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	idx.Upsert(ctx, models.CodeChunk{ID: "c1", FilePath: "a.go", Content: "x", ModifiedAt: mtime}, nil, nil)

	results, err := idx.SearchBM25(ctx, "x", 10)
	if err != nil || len(results) != 1 {
		t.Fatalf("SearchBM25: %v, %+v", err, results)
	}
	if !results[0].Chunk.ModifiedAt.Equal(mtime) {
		t.Errorf("ModifiedAt = %v, want %v", results[0].Chunk.ModifiedAt, mtime)
	}
}
