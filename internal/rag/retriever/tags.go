package retriever

import (
	"regexp"
	"strings"

	"github.com/cocodeai/cocode/pkg/models"
)

// Tag kinds, matching the def/ref distinction extracted by the original
// tree-sitter-based tagger.
const (
	TagKindDef = "def"
	TagKindRef = "ref"
)

// definitionPatterns recognize a symbol definition in one source line,
// per language family. None of this module's dependencies include a
// tree-sitter binding, so tag extraction is regex-based: coarser than a
// real grammar, but sufficient to seed the repo-map graph and exact
// symbol lookup without a new parser dependency.
var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?(\w+)\s*\(`),                  // Go function/method
	regexp.MustCompile(`^\s*type\s+(\w+)\s+(?:struct|interface)\b`),               // Go type
	regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`),                                    // Python function
	regexp.MustCompile(`^\s*class\s+(\w+)\b`),                                     // Python/JS/TS class
	regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(`), // JS/TS function
	regexp.MustCompile(`^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`),   // JS/TS arrow function const
	regexp.MustCompile(`^\s*fn\s+(\w+)\s*[(<]`),                                  // Rust function
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// commonKeywords are excluded from reference extraction: they appear in
// almost every file and would dominate the repo-map graph with noise.
var commonKeywords = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "while": {}, "return": {}, "func": {},
	"def": {}, "class": {}, "import": {}, "from": {}, "const": {}, "let": {},
	"var": {}, "type": {}, "struct": {}, "interface": {}, "package": {},
	"public": {}, "private": {}, "static": {}, "async": {}, "await": {},
	"true": {}, "false": {}, "nil": {}, "null": {}, "none": {}, "self": {},
	"this": {}, "export": {}, "default": {}, "function": {}, "fn": {},
}

// ExtractTags scans chunk content line by line, yielding one def tag per
// recognized definition and one ref tag per other identifier occurrence
// (skipping common keywords). Reference extraction is intentionally
// coarse: it feeds the repo-map's reference-counting heuristics, not a
// precise call graph.
func ExtractTags(chunk models.CodeChunk) []models.Tag {
	var tags []models.Tag
	lines := strings.Split(chunk.Content, "\n")
	defined := make(map[string]struct{})

	for i, line := range lines {
		lineNo := chunk.StartLine + i
		if name, ok := matchDefinition(line); ok {
			tags = append(tags, models.Tag{
				ChunkID:  chunk.ID,
				FilePath: chunk.FilePath,
				Name:     name,
				Kind:     TagKindDef,
				Line:     lineNo,
			})
			defined[name] = struct{}{}
		}
	}

	for i, line := range lines {
		lineNo := chunk.StartLine + i
		for _, ident := range identifierPattern.FindAllString(line, -1) {
			if _, isKeyword := commonKeywords[strings.ToLower(ident)]; isKeyword {
				continue
			}
			if _, isDef := defined[ident]; isDef {
				continue
			}
			tags = append(tags, models.Tag{
				ChunkID:  chunk.ID,
				FilePath: chunk.FilePath,
				Name:     ident,
				Kind:     TagKindRef,
				Line:     lineNo,
			})
		}
	}

	return tags
}

func matchDefinition(line string) (string, bool) {
	for _, pattern := range definitionPatterns {
		if m := pattern.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}
