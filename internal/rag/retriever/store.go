package retriever

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver; no vec0 extension available, so
	// vector search below is an in-process cosine scan over stored BLOBs
	// rather than a native ANN index — see DESIGN.md for why no pack
	// library offers a pure-Go vec0 equivalent.

	"github.com/cocodeai/cocode/pkg/models"
)

// CodeIndex is the sqlite-backed storage the Retriever queries for BM25,
// vector, and tag/symbol search. Chunk content is mirrored into an FTS5
// virtual table (snippets_fts) for BM25 ranking; embeddings are stored as
// raw float32 BLOBs and scored by cosine similarity in Go.
type CodeIndex struct {
	db *sql.DB
}

// OpenCodeIndex opens (creating if necessary) the sqlite database backing
// a CodeIndex. path may be ":memory:" for ephemeral/test use.
func OpenCodeIndex(path string) (*CodeIndex, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open code index: %w", err)
	}
	idx := &CodeIndex{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (c *CodeIndex) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS code_chunks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			language TEXT,
			content TEXT NOT NULL,
			content_hash TEXT,
			start_line INTEGER,
			end_line INTEGER,
			parent_symbol TEXT,
			is_overview INTEGER DEFAULT 0,
			embedding BLOB,
			modified_at DATETIME,
			indexed_at DATETIME
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
			chunk_id UNINDEXED, content, tokenize='porter unicode61'
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			chunk_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			line INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_file ON tags(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_file ON code_chunks(file_path)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("init code index: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (c *CodeIndex) Close() error {
	return c.db.Close()
}

// Upsert stores (or replaces) a chunk, its embedding, and its extracted
// tags. A nil embedding leaves the chunk out of vector search but keeps
// it eligible for BM25 and tag lookup.
func (c *CodeIndex) Upsert(ctx context.Context, chunk models.CodeChunk, embedding []float32, tags []models.Tag) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	defer tx.Rollback()

	now := chunk.IndexedAt
	if now.IsZero() {
		now = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO code_chunks (id, file_path, language, content, content_hash, start_line, end_line, parent_symbol, is_overview, embedding, modified_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path=excluded.file_path, language=excluded.language, content=excluded.content,
			content_hash=excluded.content_hash, start_line=excluded.start_line, end_line=excluded.end_line,
			parent_symbol=excluded.parent_symbol, is_overview=excluded.is_overview,
			embedding=excluded.embedding, modified_at=excluded.modified_at, indexed_at=excluded.indexed_at
	`, chunk.ID, chunk.FilePath, chunk.Language, chunk.Content, chunk.ContentHash,
		chunk.StartLine, chunk.EndLine, chunk.ParentSymbol, boolToInt(chunk.IsOverview),
		encodeEmbedding(embedding), chunk.ModifiedAt, now)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snippets_fts WHERE chunk_id = ?`, chunk.ID); err != nil {
		return fmt.Errorf("upsert chunk fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snippets_fts (chunk_id, content) VALUES (?, ?)`, chunk.ID, chunk.Content); err != nil {
		return fmt.Errorf("upsert chunk fts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE chunk_id = ?`, chunk.ID); err != nil {
		return fmt.Errorf("upsert chunk tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (chunk_id, file_path, name, kind, line) VALUES (?, ?, ?, ?, ?)`,
			tag.ChunkID, tag.FilePath, tag.Name, tag.Kind, tag.Line); err != nil {
			return fmt.Errorf("upsert chunk tags: %w", err)
		}
	}

	return tx.Commit()
}

// Remove deletes a chunk and its derived rows by ID.
func (c *CodeIndex) Remove(ctx context.Context, chunkID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM code_chunks WHERE id = ?`,
		`DELETE FROM snippets_fts WHERE chunk_id = ?`,
		`DELETE FROM tags WHERE chunk_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, chunkID); err != nil {
			return fmt.Errorf("remove chunk: %w", err)
		}
	}
	return tx.Commit()
}

// SearchBM25 ranks chunks by FTS5's built-in bm25() scoring function
// against query, ascending (sqlite reports bm25 as a negative score, so
// the best match sorts first).
func (c *CodeIndex) SearchBM25(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT cc.id, cc.file_path, cc.language, cc.content, cc.content_hash, cc.start_line, cc.end_line,
			cc.parent_symbol, cc.is_overview, cc.modified_at, cc.indexed_at, bm25(snippets_fts) AS rank
		FROM snippets_fts
		JOIN code_chunks cc ON cc.id = snippets_fts.chunk_id
		WHERE snippets_fts MATCH ?
		ORDER BY rank ASC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var chunk models.CodeChunk
		var isOverview int
		var rank float64
		if err := rows.Scan(&chunk.ID, &chunk.FilePath, &chunk.Language, &chunk.Content, &chunk.ContentHash,
			&chunk.StartLine, &chunk.EndLine, &chunk.ParentSymbol, &isOverview, &chunk.ModifiedAt, &chunk.IndexedAt, &rank); err != nil {
			return nil, fmt.Errorf("bm25 search scan: %w", err)
		}
		chunk.IsOverview = isOverview != 0
		results = append(results, models.SearchResult{Chunk: chunk, Score: -rank, ScoreType: models.ScoreBM25})
	}
	return results, rows.Err()
}

// SearchVector ranks chunks by cosine similarity of their stored
// embedding against queryEmbedding. Every embedded chunk is scanned;
// this is adequate for a single-workspace repo index and avoids a native
// ANN dependency the pure-Go sqlite driver can't load.
func (c *CodeIndex) SearchVector(ctx context.Context, queryEmbedding []float32, limit int) ([]models.SearchResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, file_path, language, content, content_hash, start_line, end_line, parent_symbol, is_overview, embedding, modified_at, indexed_at
		FROM code_chunks WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var chunk models.CodeChunk
		var isOverview int
		var embeddingBlob []byte
		if err := rows.Scan(&chunk.ID, &chunk.FilePath, &chunk.Language, &chunk.Content, &chunk.ContentHash,
			&chunk.StartLine, &chunk.EndLine, &chunk.ParentSymbol, &isOverview, &embeddingBlob, &chunk.ModifiedAt, &chunk.IndexedAt); err != nil {
			return nil, fmt.Errorf("vector search scan: %w", err)
		}
		chunk.IsOverview = isOverview != 0
		score := cosineSimilarity(queryEmbedding, decodeEmbedding(embeddingBlob))
		results = append(results, models.SearchResult{Chunk: chunk, Score: float64(score), ScoreType: models.ScoreVector})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortResultsDesc(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchTags performs an exact (case-sensitive) symbol name match against
// the tags table and returns the chunks that define or reference it,
// definitions first.
func (c *CodeIndex) SearchTags(ctx context.Context, symbol string, limit int) ([]models.SearchResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT cc.id, cc.file_path, cc.language, cc.content, cc.content_hash, cc.start_line, cc.end_line,
			cc.parent_symbol, cc.is_overview, cc.modified_at, cc.indexed_at, t.kind
		FROM tags t
		JOIN code_chunks cc ON cc.id = t.chunk_id
		WHERE t.name = ?
		ORDER BY CASE t.kind WHEN 'def' THEN 0 ELSE 1 END
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("tag search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	rank := 0
	for rows.Next() {
		var chunk models.CodeChunk
		var isOverview int
		var kind string
		if err := rows.Scan(&chunk.ID, &chunk.FilePath, &chunk.Language, &chunk.Content, &chunk.ContentHash,
			&chunk.StartLine, &chunk.EndLine, &chunk.ParentSymbol, &isOverview, &chunk.ModifiedAt, &chunk.IndexedAt, &kind); err != nil {
			return nil, fmt.Errorf("tag search scan: %w", err)
		}
		chunk.IsOverview = isOverview != 0
		score := 1.0 / float64(rank+1)
		if kind == TagKindDef {
			score *= 2
		}
		results = append(results, models.SearchResult{Chunk: chunk, Score: score, ScoreType: models.ScoreSymbol})
		rank++
	}
	return results, rows.Err()
}

// AllTagsForFile returns every tag previously extracted from filePath,
// used by the repo-map builder to reconstruct the dependency graph.
func (c *CodeIndex) AllTagsForFile(ctx context.Context, filePath string) ([]models.Tag, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT chunk_id, file_path, name, kind, line FROM tags WHERE file_path = ?`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ChunkID, &tag.FilePath, &tag.Name, &tag.Kind, &tag.Line); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AllFiles returns the distinct set of file paths currently indexed.
func (c *CodeIndex) AllFiles(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT file_path FROM code_chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

func sortResultsDesc(results []models.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
