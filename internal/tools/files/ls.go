package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cocodeai/cocode/internal/agent"
	"github.com/cocodeai/cocode/internal/policy"
	"github.com/cocodeai/cocode/pkg/models"
)

// maxLSEntries bounds how many directory entries a single ls call will
// collect before stopping the walk early, to keep large repositories from
// blowing up memory or output size.
const maxLSEntries = 2000

// sensitiveDirNames flags directories that should never be listed without
// an explicit approval, regardless of rule-based policy.
var sensitiveDirNames = map[string]bool{
	".ssh":    true,
	".aws":    true,
	".gnupg":  true,
	".docker": true,
	".kube":   true,
}

// LSTool lists directory contents in a tree-like view, directories first
// and alphabetical within each level.
type LSTool struct {
	agent.ToolSafetyDefaults
	resolver     Resolver
	defaultLimit int
	defaultDepth int
}

// NewLSTool creates an ls tool scoped to the workspace.
func NewLSTool(cfg Config) *LSTool {
	return &LSTool{
		resolver:     Resolver{Root: cfg.Workspace},
		defaultLimit: 25,
		defaultDepth: 1,
	}
}

// Name returns the tool name.
func (t *LSTool) Name() string { return "ls" }

// Description returns the tool description.
func (t *LSTool) Description() string {
	return "List directory contents in a tree-like view, directories first, bounded and paginated."
}

// ConcurrencySafety reports that listing a directory has no side effects.
func (t *LSTool) ConcurrencySafety() agent.ConcurrencySafety { return agent.ConcurrencySafe }

// IsReadOnly reports that this tool never mutates the workspace.
func (t *LSTool) IsReadOnly() bool { return true }

// Schema returns the JSON schema for the tool parameters.
func (t *LSTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the directory to list (relative to workspace).",
			},
			"depth": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum traversal depth (default: 1, immediate children only).",
				"minimum":     1,
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "1-indexed start entry for pagination (default: 1).",
				"minimum":     1,
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of entries to return (default: 25).",
				"minimum":     1,
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type lsInput struct {
	Path   string `json:"path"`
	Depth  int    `json:"depth"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// CheckPermission flags listings of known-sensitive directories so the
// permission pipeline asks for approval even when no explicit rule
// matches.
func (t *LSTool) CheckPermission(input []byte) policy.Decision {
	var in lsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return policy.Decision{}
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return policy.Decision{}
	}
	if isSensitivePath(resolved) {
		return policy.Decision{
			Behavior: models.PermissionAsk,
			Reason:   fmt.Sprintf("listing sensitive directory: %s", resolved),
		}
	}
	return policy.Decision{}
}

type lsEntry struct {
	sortKey     string
	displayName string
	depth       int
	isDir       bool
	isSymlink   bool
}

// Execute lists a directory, applying depth, offset, and limit.
func (t *LSTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input lsInput
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}
	depth := input.Depth
	if depth <= 0 {
		depth = t.defaultDepth
	}
	offset := input.Offset
	if offset <= 0 {
		offset = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = t.defaultLimit
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("path does not exist: %s", resolved)), nil
	}
	if !info.IsDir() {
		return toolError(fmt.Sprintf("path is not a directory: %s", resolved)), nil
	}

	entries, truncated := collectLSEntries(resolved, depth)
	sortLSEntries(entries)

	if len(entries) == 0 {
		payload, _ := json.MarshalIndent(map[string]interface{}{
			"path":    resolved,
			"entries": []string{},
			"empty":   true,
		}, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil
	}

	offsetIdx := offset - 1
	if offsetIdx >= len(entries) {
		return toolError("offset exceeds directory entry count"), nil
	}
	remaining := len(entries) - offsetIdx
	if limit > remaining {
		limit = remaining
	}
	selected := entries[offsetIdx : offsetIdx+limit]

	lines := make([]string, 0, len(selected))
	for _, e := range selected {
		lines = append(lines, formatLSEntry(e))
	}

	result := map[string]interface{}{
		"path":        resolved,
		"entries":     lines,
		"shown":       len(selected),
		"total":       len(entries),
		"has_more":    offsetIdx+limit < len(entries),
		"truncated":   truncated,
		"next_offset": offsetIdx + limit + 1,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func collectLSEntries(root string, maxDepth int) ([]lsEntry, bool) {
	var entries []lsEntry
	ignoreMatcher := loadGitignore(root)
	truncated := false

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if truncated {
			return
		}
		children, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, child := range children {
			name := child.Name()
			if alwaysExcludedDirs[name] {
				continue
			}
			relPath, err := filepath.Rel(root, filepath.Join(dir, name))
			if err != nil {
				continue
			}
			relPath = filepath.ToSlash(relPath)
			if ignoreMatcher.MatchesPath(relPath) {
				continue
			}

			info, err := child.Info()
			isSymlink := err == nil && info.Mode()&os.ModeSymlink != 0
			entries = append(entries, lsEntry{
				sortKey:     relPath,
				displayName: name,
				depth:       depth,
				isDir:       child.IsDir(),
				isSymlink:   isSymlink,
			})
			if len(entries) >= maxLSEntries {
				truncated = true
				return
			}
			if child.IsDir() && depth+1 < maxDepth {
				walk(filepath.Join(dir, name), depth+1)
				if truncated {
					return
				}
			}
		}
	}
	walk(root, 0)
	return entries, truncated
}

func sortLSEntries(entries []lsEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a := strings.Split(entries[i].sortKey, "/")
		b := strings.Split(entries[j].sortKey, "/")
		minLen := len(a)
		if len(b) < minLen {
			minLen = len(b)
		}
		for k := 0; k < minLen; k++ {
			if a[k] != b[k] {
				aIsDir := k != len(a)-1 || entries[i].isDir
				bIsDir := k != len(b)-1 || entries[j].isDir
				if aIsDir != bIsDir {
					return aIsDir
				}
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

func formatLSEntry(e lsEntry) string {
	indent := strings.Repeat("  ", e.depth)
	name := e.displayName
	switch {
	case e.isDir:
		name += "/"
	case e.isSymlink:
		name += "@"
	}
	return indent + name
}

// isSensitivePath reports whether resolved names or contains a
// known-sensitive directory (credential stores, cloud/SSH config).
func isSensitivePath(resolved string) bool {
	parts := strings.Split(filepath.ToSlash(resolved), "/")
	for _, p := range parts {
		if sensitiveDirNames[p] {
			return true
		}
	}
	return false
}
