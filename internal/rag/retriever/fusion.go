// Package retriever implements the hybrid code-search pipeline: BM25
// full-text, vector k-NN, symbol/tag exact match, and recently-edited
// files, fused by Reciprocal Rank Fusion, plus a PageRank-based repo map
// ranker for context prioritization.
package retriever

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/cocodeai/cocode/pkg/models"
)

const (
	// DefaultRRFK is the RRF constant added to each rank before dividing
	// by the source weight; larger k flattens the influence of rank.
	DefaultRRFK = 60.0

	// DefaultRecencyHalfLifeDays is how many days it takes a file's
	// recency score to decay to 0.5.
	DefaultRecencyHalfLifeDays = 7.0

	secondsPerDay = 86400.0
	ln2           = math.Ln2
)

// FusionConfig controls Reciprocal Rank Fusion weighting across the four
// retrieval sources plus the time-decay recency boost.
type FusionConfig struct {
	// K is the RRF constant (typically 60).
	K float64

	// BM25Weight, VectorWeight, SnippetWeight, RecentWeight weight each
	// source's contribution to the fused score.
	BM25Weight    float64
	VectorWeight  float64
	SnippetWeight float64
	RecentWeight  float64

	// RecencyBoostWeight adds recency_score(mtime) * RecencyBoostWeight
	// to every fused result, independent of source weighting. 0 disables it.
	RecencyBoostWeight float64

	// RecencyHalfLifeDays is the decay half-life used by the recency boost.
	RecencyHalfLifeDays float64
}

// DefaultFusionConfig returns the general-purpose weighting used when the
// query doesn't look like an identifier or symbol-search expression.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		K:                   DefaultRRFK,
		BM25Weight:          0.5,
		VectorWeight:        0.3,
		SnippetWeight:       0.0,
		RecentWeight:        0.2,
		RecencyBoostWeight:  0.0,
		RecencyHalfLifeDays: DefaultRecencyHalfLifeDays,
	}
}

// ForIdentifierQuery reweights toward snippet/symbol matching for
// queries that look like a single identifier (snake_case, camelCase).
func (c FusionConfig) ForIdentifierQuery() FusionConfig {
	c.BM25Weight = 0.4
	c.VectorWeight = 0.2
	c.SnippetWeight = 0.3
	c.RecentWeight = 0.1
	return c
}

// ForSymbolQuery reweights heavily toward snippet/symbol matching for
// queries using `type:`/`name:`/`file:`/`path:` syntax.
func (c FusionConfig) ForSymbolQuery() FusionConfig {
	c.BM25Weight = 0.2
	c.VectorWeight = 0.1
	c.SnippetWeight = 0.6
	c.RecentWeight = 0.1
	return c
}

// ConfigForQuery picks the fusion weighting that matches the shape of
// the query string: symbol syntax takes precedence over bare identifiers.
func ConfigForQuery(query string) FusionConfig {
	base := DefaultFusionConfig()
	switch {
	case HasSymbolSyntax(query):
		return base.ForSymbolQuery()
	case IsIdentifierQuery(query):
		return base.ForIdentifierQuery()
	default:
		return base
	}
}

// HasSymbolSyntax reports whether query contains type:/name:/file:/path:
// prefix syntax, signaling the caller wants exact symbol lookup.
func HasSymbolSyntax(query string) bool {
	return strings.Contains(query, "type:") ||
		strings.Contains(query, "name:") ||
		strings.Contains(query, "file:") ||
		strings.Contains(query, "path:")
}

// IsIdentifierQuery reports whether query looks like a single source
// identifier (snake_case, camelCase/PascalCase, or a bare alphanumeric
// word) rather than natural-language prose.
func IsIdentifierQuery(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || strings.Contains(trimmed, " ") {
		return false
	}
	if strings.Contains(trimmed, "_") {
		return true
	}

	runes := []rune(trimmed)
	if !unicode.IsLetter(runes[0]) {
		return false
	}

	var hasUpper, hasLower bool
	for _, r := range runes {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return true
	}

	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// RecencyScore returns a value in [0, 1] measuring how recently mtime
// occurred: 1.0 for "now", 0.5 at halfLifeDays ago, decaying
// exponentially beyond that. A zero mtime or one in the future scores 0.
func RecencyScore(mtime time.Time, halfLifeDays float64) float64 {
	if mtime.IsZero() {
		return 0
	}
	now := time.Now()
	if mtime.After(now) {
		return 0
	}
	ageDays := now.Sub(mtime).Seconds() / secondsPerDay
	decayRate := ln2 / halfLifeDays
	return math.Exp(-decayRate * ageDays)
}

// ApplyRecencyBoost adds RecencyScore(chunk.ModifiedAt) * RecencyBoostWeight
// to every result's score, in place. A no-op when the weight is <= 0.
func ApplyRecencyBoost(results []models.SearchResult, cfg FusionConfig) {
	if cfg.RecencyBoostWeight <= 0 {
		return
	}
	for i := range results {
		boost := RecencyScore(results[i].Chunk.ModifiedAt, cfg.RecencyHalfLifeDays)
		results[i].Score += boost * cfg.RecencyBoostWeight
	}
}

// rrfSource pairs a ranked result list with its fusion weight.
type rrfSource struct {
	results []models.SearchResult
	weight  float64
}

func rrfScore(rank int, weight, k float64) float64 {
	return weight / (float64(rank) + k)
}

// fuseSources merges ranked lists from multiple sources into one list by
// summing each chunk's Reciprocal Rank Fusion contribution across every
// source it appears in, then sorts descending by fused score and
// truncates to limit.
func fuseSources(sources []rrfSource, k float64, limit int) []models.SearchResult {
	type scored struct {
		score float64
		chunk models.CodeChunk
	}
	byID := make(map[string]*scored)
	order := make([]string, 0)

	for _, source := range sources {
		for rank, result := range source.results {
			score := rrfScore(rank, source.weight, k)
			if existing, ok := byID[result.Chunk.ID]; ok {
				existing.score += score
				continue
			}
			byID[result.Chunk.ID] = &scored{score: score, chunk: result.Chunk}
			order = append(order, result.Chunk.ID)
		}
	}

	results := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		s := byID[id]
		results = append(results, models.SearchResult{
			Chunk:     s.chunk,
			Score:     s.score,
			ScoreType: models.ScoreHybrid,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// FuseAll merges all four retrieval sources (BM25, vector, snippet/tag,
// recent-files) by RRF and returns up to limit results ordered by fused
// score descending.
func FuseAll(bm25, vector, snippet, recent []models.SearchResult, cfg FusionConfig, limit int) []models.SearchResult {
	return fuseSources([]rrfSource{
		{bm25, cfg.BM25Weight},
		{vector, cfg.VectorWeight},
		{snippet, cfg.SnippetWeight},
		{recent, cfg.RecentWeight},
	}, cfg.K, limit)
}

// CalculateNFinal computes the result-count cap from the model's context
// window: clamp(contextLength/2/512, 1, 20). A non-positive contextLength
// (unknown window) defaults to 20.
func CalculateNFinal(contextLength int) int {
	if contextLength <= 0 {
		return 20
	}
	n := contextLength / 2 / 512
	if n < 1 {
		return 1
	}
	if n > 20 {
		return 20
	}
	return n
}
