package files

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// alwaysExcludedDirs are skipped during directory walks regardless of
// .gitignore contents; these are VCS/dependency directories no agent tool
// should ever need to traverse.
var alwaysExcludedDirs = map[string]bool{
	".git": true,
}

// loadGitignore reads a .gitignore file at root, if present, and compiles
// it into a matcher. When no .gitignore exists the returned matcher never
// matches, so callers can apply it unconditionally.
func loadGitignore(root string) *gitignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return gitignore.CompileIgnoreLines()
	}
	return gitignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}

// looksBinary reports whether content appears to be binary by scanning a
// leading sample for NUL bytes, the same heuristic ripgrep's searcher
// uses to skip non-text files.
func looksBinary(sample []byte) bool {
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
