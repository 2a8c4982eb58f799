// Package dedup provides the bounded ledger of already-handled play ids.
package dedup

import "sync"

// SeenSet is a bounded, insertion-ordered set. Once Len would exceed the
// capacity the oldest ids are evicted first. Safe for concurrent use.
type SeenSet struct {
	mu    sync.Mutex
	cap   int
	order []string // oldest first
	index map[string]struct{}
}

// NewSeenSet returns a set holding at most capacity ids (minimum 1).
func NewSeenSet(capacity int) *SeenSet {
	capacity = max(capacity, 1)
	return &SeenSet{
		cap:   capacity,
		order: make([]string, 0, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

func (s *SeenSet) Seen(id string) bool {
	s.mu.Lock()
	_, ok := s.index[id]
	s.mu.Unlock()
	return ok
}

// Mark records id. Marking an id already present changes nothing.
func (s *SeenSet) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markLocked(id)
}

// MarkIfNew marks id and reports whether it was absent. Check and mark
// happen under one lock so concurrent callers cannot both win.
func (s *SeenSet) MarkIfNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return false
	}
	s.markLocked(id)
	return true
}

func (s *SeenSet) markLocked(id string) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.order = append(s.order, id)
	s.index[id] = struct{}{}
	s.evictLocked()
}

func (s *SeenSet) evictLocked() {
	over := len(s.order) - s.cap
	if over <= 0 {
		return
	}
	for _, old := range s.order[:over] {
		delete(s.index, old)
	}
	// Copy down so the backing array does not grow without bound.
	n := copy(s.order, s.order[over:])
	clear(s.order[n:])
	s.order = s.order[:n]
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *SeenSet) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap
}

// Snapshot returns the ids oldest first.
func (s *SeenSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Restore replaces the contents with ids (oldest first), keeping only the
// newest Cap() of them.
func (s *SeenSet) Restore(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	clear(s.index)
	for _, id := range ids {
		s.markLocked(id)
	}
}

// Resize changes the capacity, evicting the oldest ids if it shrank.
func (s *SeenSet) Resize(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cap = max(capacity, 1)
	s.evictLocked()
}
