package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cocodeai/cocode/internal/agent"
)

// maxGrepMatches bounds the total number of matches a single grep call
// will collect, across all files, to keep output bounded on large repos.
const maxGrepMatches = 500

// maxGrepScanBytes caps how much of a single file is read for searching,
// so a pathological huge file can't stall the tool.
const maxGrepScanBytes = 5 << 20

// GrepTool searches file contents with a regular expression, respecting
// .gitignore and skipping binary files, similar in spirit to ripgrep.
type GrepTool struct {
	agent.ToolSafetyDefaults
	resolver Resolver
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(cfg Config) *GrepTool {
	return &GrepTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *GrepTool) Name() string { return "grep" }

// Description returns the tool description.
func (t *GrepTool) Description() string {
	return "Search file contents with a regular expression, respecting .gitignore and skipping binaries."
}

// ConcurrencySafety reports that searching has no side effects.
func (t *GrepTool) ConcurrencySafety() agent.ConcurrencySafety { return agent.ConcurrencySafe }

// IsReadOnly reports that this tool never mutates the workspace.
func (t *GrepTool) IsReadOnly() bool { return true }

// Schema returns the JSON schema for the tool parameters.
func (t *GrepTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory or file to search (relative to workspace, default: workspace root).",
			},
			"glob": map[string]interface{}{
				"type":        "string",
				"description": "Only search files whose base name matches this glob (e.g. \"*.go\").",
			},
			"output_mode": map[string]interface{}{
				"type":        "string",
				"description": "One of files_with_matches (default), content, or count.",
				"enum":        []string{"files_with_matches", "content", "count"},
			},
			"-i": map[string]interface{}{
				"type":        "boolean",
				"description": "Case-insensitive match.",
			},
			"multiline": map[string]interface{}{
				"type":        "boolean",
				"description": "Let the pattern span multiple lines (. matches newline).",
			},
			"-A": map[string]interface{}{
				"type":        "integer",
				"description": "Lines of context to show after each match (content mode only).",
				"minimum":     0,
			},
			"-B": map[string]interface{}{
				"type":        "integer",
				"description": "Lines of context to show before each match (content mode only).",
				"minimum":     0,
			},
			"-C": map[string]interface{}{
				"type":        "integer",
				"description": "Lines of context to show around each match; overridden by -A/-B.",
				"minimum":     0,
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type grepInput struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path"`
	Glob       string `json:"glob"`
	OutputMode string `json:"output_mode"`
	IgnoreCase bool   `json:"-i"`
	Multiline  bool   `json:"multiline"`
	After      int    `json:"-A"`
	Before     int    `json:"-B"`
	Context    int    `json:"-C"`
}

type grepMatch struct {
	relPath string
	lineNum int
}

// Execute searches file contents under the resolved root and formats the
// result according to output_mode.
func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input grepInput
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}
	searchPath := input.Path
	if strings.TrimSpace(searchPath) == "" {
		searchPath = "."
	}
	resolved, err := t.resolver.Resolve(searchPath)
	if err != nil {
		return toolError(err.Error()), nil
	}

	before, after := input.Before, input.After
	if input.Context > 0 {
		if before == 0 {
			before = input.Context
		}
		if after == 0 {
			after = input.Context
		}
	}

	flags := ""
	if input.IgnoreCase {
		flags += "i"
	}
	if input.Multiline {
		flags += "s"
	}
	pattern := input.Pattern
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return toolError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	files, err := candidateFiles(resolved, input.Glob)
	if err != nil {
		return toolError(err.Error()), nil
	}

	outputMode := input.OutputMode
	if outputMode == "" {
		outputMode = "files_with_matches"
	}

	switch outputMode {
	case "content":
		return t.searchContent(resolved, files, re, input.Multiline, before, after)
	case "count":
		return t.searchCount(resolved, files, re)
	default:
		return t.searchFilesWithMatches(resolved, files, re)
	}
}

// candidateFiles walks root (file or directory), skipping .gitignore
// matches and the always-excluded directories, returning absolute paths
// in deterministic order.
func candidateFiles(root, glob string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	matcher := loadGitignore(root)

	var files []string
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			name := e.Name()
			if alwaysExcludedDirs[name] {
				continue
			}
			full := filepath.Join(dir, name)
			rel, err := filepath.Rel(root, full)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if matcher.MatchesPath(rel) {
				continue
			}
			if e.IsDir() {
				walk(full)
				continue
			}
			if glob != "" {
				if ok, _ := filepath.Match(glob, name); !ok {
					continue
				}
			}
			files = append(files, full)
		}
	}
	walk(root)
	sort.Strings(files)
	return files, nil
}

func readSearchable(path string) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, false
	}
	size := info.Size()
	if size > maxGrepScanBytes {
		size = maxGrepScanBytes
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, false
	}
	buf = buf[:n]
	if looksBinary(buf) {
		return nil, false
	}
	return buf, true
}

func (t *GrepTool) searchFilesWithMatches(root string, files []string, re *regexp.Regexp) (*agent.ToolResult, error) {
	var matched []string
	for _, f := range files {
		content, ok := readSearchable(f)
		if !ok {
			continue
		}
		if re.Match(content) {
			rel, _ := filepath.Rel(root, f)
			matched = append(matched, filepath.ToSlash(rel))
			if len(matched) >= maxGrepMatches {
				break
			}
		}
	}
	if len(matched) == 0 {
		return &agent.ToolResult{Content: "No matches found"}, nil
	}
	return &agent.ToolResult{Content: strings.Join(matched, "\n")}, nil
}

func (t *GrepTool) searchCount(root string, files []string, re *regexp.Regexp) (*agent.ToolResult, error) {
	var lines []string
	total := 0
	for _, f := range files {
		content, ok := readSearchable(f)
		if !ok {
			continue
		}
		count := len(re.FindAll(content, -1))
		if count == 0 {
			continue
		}
		rel, _ := filepath.Rel(root, f)
		lines = append(lines, fmt.Sprintf("%s:%d", filepath.ToSlash(rel), count))
		total += count
		if total >= maxGrepMatches {
			break
		}
	}
	if len(lines) == 0 {
		return &agent.ToolResult{Content: "No matches found"}, nil
	}
	return &agent.ToolResult{Content: strings.Join(lines, "\n")}, nil
}

func (t *GrepTool) searchContent(root string, files []string, re *regexp.Regexp, multiline bool, before, after int) (*agent.ToolResult, error) {
	var out []string
	total := 0
	for _, f := range files {
		content, ok := readSearchable(f)
		if !ok {
			continue
		}
		lines := strings.Split(string(content), "\n")
		matchedIdx := matchedLineIndexes(re, lines, multiline, string(content))
		if len(matchedIdx) == 0 {
			continue
		}
		rel, _ := filepath.Rel(root, f)
		rel = filepath.ToSlash(rel)

		ranges := contextRanges(matchedIdx, len(lines), before, after)
		prevEnd := -1
		for _, r := range ranges {
			if prevEnd >= 0 && r.start > prevEnd+1 {
				out = append(out, "  --")
			}
			for i := r.start; i <= r.end; i++ {
				sep := "-"
				if matchedIdx[i] {
					sep = ":"
				}
				out = append(out, fmt.Sprintf("%s%s%d%s%s", rel, sep, i+1, sep, lines[i]))
			}
			prevEnd = r.end
			total++
			if total >= maxGrepMatches {
				break
			}
		}
		if total >= maxGrepMatches {
			break
		}
	}
	if len(out) == 0 {
		return &agent.ToolResult{Content: "No matches found"}, nil
	}
	return &agent.ToolResult{Content: strings.Join(out, "\n")}, nil
}

// matchedLineIndexes returns a set of 0-indexed line numbers that contain
// (or, for multiline patterns, overlap) a match.
func matchedLineIndexes(re *regexp.Regexp, lines []string, multiline bool, full string) map[int]bool {
	matched := make(map[int]bool)
	if !multiline {
		for i, line := range lines {
			if re.MatchString(line) {
				matched[i] = true
			}
		}
		return matched
	}
	for _, loc := range re.FindAllStringIndex(full, -1) {
		startLine := strings.Count(full[:loc[0]], "\n")
		endLine := strings.Count(full[:loc[1]], "\n")
		for i := startLine; i <= endLine && i < len(lines); i++ {
			matched[i] = true
		}
	}
	return matched
}

type lineRange struct{ start, end int }

// contextRanges merges each matched line with its before/after context,
// collapsing overlapping or adjacent windows into a single range.
func contextRanges(matched map[int]bool, numLines, before, after int) []lineRange {
	idxs := make([]int, 0, len(matched))
	for i := range matched {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	var ranges []lineRange
	for _, i := range idxs {
		start := i - before
		if start < 0 {
			start = 0
		}
		end := i + after
		if end >= numLines {
			end = numLines - 1
		}
		if len(ranges) > 0 && start <= ranges[len(ranges)-1].end+1 {
			if end > ranges[len(ranges)-1].end {
				ranges[len(ranges)-1].end = end
			}
			continue
		}
		ranges = append(ranges, lineRange{start: start, end: end})
	}
	return ranges
}
