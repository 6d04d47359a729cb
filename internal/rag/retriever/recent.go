package retriever

import (
	"container/list"
	"sync"

	"github.com/cocodeai/cocode/pkg/models"
)

// DefaultRecentCapacity is the default number of recently-touched files
// the LRU remembers for the "recent" retrieval source.
const DefaultRecentCapacity = 50

// RecentFiles is a thread-safe, fixed-capacity LRU of recently edited or
// viewed file paths, used as one of the four retrieval sources.
type RecentFiles struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type recentEntry struct {
	filePath string
	ref      models.ChunkRef
}

// NewRecentFiles creates an LRU with the given capacity. A non-positive
// capacity falls back to DefaultRecentCapacity.
func NewRecentFiles(capacity int) *RecentFiles {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentFiles{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Touch records filePath as most recently used, evicting the least
// recently used entry if the LRU is at capacity.
func (r *RecentFiles) Touch(ref models.ChunkRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[ref.FilePath]; ok {
		el.Value = recentEntry{filePath: ref.FilePath, ref: ref}
		r.order.MoveToFront(el)
		return
	}

	el := r.order.PushFront(recentEntry{filePath: ref.FilePath, ref: ref})
	r.entries[ref.FilePath] = el

	if r.order.Len() > r.capacity {
		oldest := r.order.Back()
		if oldest != nil {
			r.order.Remove(oldest)
			delete(r.entries, oldest.Value.(recentEntry).filePath)
		}
	}
}

// Recent returns up to limit file refs, most recently touched first.
func (r *RecentFiles) Recent(limit int) []models.ChunkRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.order.Len() {
		limit = r.order.Len()
	}
	out := make([]models.ChunkRef, 0, limit)
	for el := r.order.Front(); el != nil && len(out) < limit; el = el.Next() {
		out = append(out, el.Value.(recentEntry).ref)
	}
	return out
}

// Files returns the current set of recently touched file paths.
func (r *RecentFiles) Files() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]struct{}, len(r.entries))
	for path := range r.entries {
		out[path] = struct{}{}
	}
	return out
}

// Len reports the number of entries currently tracked.
func (r *RecentFiles) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
