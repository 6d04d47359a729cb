package index

import (
	"sync"

	"github.com/cocodeai/cocode/internal/rag/parser/markdown"
	"github.com/cocodeai/cocode/internal/rag/parser/text"
)

var registerParsersOnce sync.Once

func ensureDefaultParsers() {
	registerParsersOnce.Do(func() {
		markdown.Register()
		text.Register()
	})
}
