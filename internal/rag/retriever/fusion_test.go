package retriever

import (
	"testing"
	"time"

	"github.com/cocodeai/cocode/pkg/models"
)

// ============================================================================
// Query Shape Tests
// ============================================================================

func TestHasSymbolSyntax(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"name:FooBar", true},
		{"type:struct Widget", true},
		{"file:main.go", true},
		{"path:internal/agent", true},
		{"how does retry work", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasSymbolSyntax(tt.query); got != tt.want {
			t.Errorf("HasSymbolSyntax(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestIsIdentifierQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"snake_case_name", true},
		{"camelCaseName", true},
		{"PascalCaseName", true},
		{"lowercase", true},
		{"123abc", false},
		{"how do retries work", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsIdentifierQuery(tt.query); got != tt.want {
			t.Errorf("IsIdentifierQuery(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestConfigForQuery_PicksSymbolWeighting(t *testing.T) {
	cfg := ConfigForQuery("name:Retriever")
	want := DefaultFusionConfig().ForSymbolQuery()
	if cfg.SnippetWeight != want.SnippetWeight {
		t.Errorf("SnippetWeight = %v, want %v", cfg.SnippetWeight, want.SnippetWeight)
	}
}

func TestConfigForQuery_PicksIdentifierWeighting(t *testing.T) {
	cfg := ConfigForQuery("retryContext")
	want := DefaultFusionConfig().ForIdentifierQuery()
	if cfg.SnippetWeight != want.SnippetWeight {
		t.Errorf("SnippetWeight = %v, want %v", cfg.SnippetWeight, want.SnippetWeight)
	}
}

func TestConfigForQuery_DefaultsForProse(t *testing.T) {
	cfg := ConfigForQuery("how does retry work")
	want := DefaultFusionConfig()
	if cfg.BM25Weight != want.BM25Weight {
		t.Errorf("BM25Weight = %v, want %v", cfg.BM25Weight, want.BM25Weight)
	}
}

// ============================================================================
// Recency Tests
// ============================================================================

func TestRecencyScore_Now(t *testing.T) {
	score := RecencyScore(time.Now(), DefaultRecencyHalfLifeDays)
	if score < 0.99 || score > 1.0 {
		t.Errorf("RecencyScore(now) = %v, want ~1.0", score)
	}
}

func TestRecencyScore_HalfLife(t *testing.T) {
	mtime := time.Now().Add(-time.Duration(DefaultRecencyHalfLifeDays*24) * time.Hour)
	score := RecencyScore(mtime, DefaultRecencyHalfLifeDays)
	if score < 0.49 || score > 0.51 {
		t.Errorf("RecencyScore(halfLife) = %v, want ~0.5", score)
	}
}

func TestRecencyScore_ZeroTime(t *testing.T) {
	if got := RecencyScore(time.Time{}, DefaultRecencyHalfLifeDays); got != 0 {
		t.Errorf("RecencyScore(zero) = %v, want 0", got)
	}
}

func TestRecencyScore_Future(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	if got := RecencyScore(future, DefaultRecencyHalfLifeDays); got != 0 {
		t.Errorf("RecencyScore(future) = %v, want 0", got)
	}
}

func TestApplyRecencyBoost_NoopWhenWeightZero(t *testing.T) {
	results := []models.SearchResult{{Score: 1.0, Chunk: models.CodeChunk{ModifiedAt: time.Now()}}}
	ApplyRecencyBoost(results, FusionConfig{RecencyBoostWeight: 0})
	if results[0].Score != 1.0 {
		t.Errorf("Score = %v, want unchanged 1.0", results[0].Score)
	}
}

func TestApplyRecencyBoost_AddsBoost(t *testing.T) {
	results := []models.SearchResult{{Score: 1.0, Chunk: models.CodeChunk{ModifiedAt: time.Now()}}}
	ApplyRecencyBoost(results, FusionConfig{RecencyBoostWeight: 1.0, RecencyHalfLifeDays: DefaultRecencyHalfLifeDays})
	if results[0].Score <= 1.0 {
		t.Errorf("Score = %v, want > 1.0 after boost", results[0].Score)
	}
}

// ============================================================================
// RRF Fusion Tests
// ============================================================================

func chunkResult(id string, score float64) models.SearchResult {
	return models.SearchResult{Chunk: models.CodeChunk{ID: id}, Score: score}
}

func TestFuseAll_RanksOverlapAboveSingleSource(t *testing.T) {
	bm25 := []models.SearchResult{chunkResult("a", 1), chunkResult("b", 0.9)}
	vector := []models.SearchResult{chunkResult("b", 1), chunkResult("c", 0.9)}

	cfg := DefaultFusionConfig()
	fused := FuseAll(bm25, vector, nil, nil, cfg, 10)

	if len(fused) == 0 || fused[0].Chunk.ID != "b" {
		t.Fatalf("expected chunk 'b' (present in both sources) to rank first, got %+v", fused)
	}
}

func TestFuseAll_RespectsLimit(t *testing.T) {
	bm25 := []models.SearchResult{chunkResult("a", 1), chunkResult("b", 1), chunkResult("c", 1)}
	fused := FuseAll(bm25, nil, nil, nil, DefaultFusionConfig(), 2)
	if len(fused) != 2 {
		t.Errorf("len(fused) = %d, want 2", len(fused))
	}
}

func TestFuseAll_EmptySources(t *testing.T) {
	fused := FuseAll(nil, nil, nil, nil, DefaultFusionConfig(), 10)
	if len(fused) != 0 {
		t.Errorf("len(fused) = %d, want 0", len(fused))
	}
}

// ============================================================================
// CalculateNFinal Tests
// ============================================================================

func TestCalculateNFinal(t *testing.T) {
	tests := []struct {
		contextLength int
		want          int
	}{
		{0, 20},
		{-1, 20},
		{1024, 1},
		{8192, 8},
		{1000000, 20},
	}
	for _, tt := range tests {
		if got := CalculateNFinal(tt.contextLength); got != tt.want {
			t.Errorf("CalculateNFinal(%d) = %d, want %d", tt.contextLength, got, tt.want)
		}
	}
}
