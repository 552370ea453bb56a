// Package dedup tracks which message ids have already been reported.
package dedup

// SeenSet is the set of reported message ids. It only grows and lives as
// long as the process; nothing is persisted or evicted.
// It is not safe for concurrent use; its owning Poller is the only user.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet returns an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Contains reports whether id has been marked seen.
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks id as seen. Adding an id twice is a no-op.
func (s *SeenSet) Add(id string) {
	s.ids[id] = struct{}{}
}

// Len returns the number of tracked ids.
func (s *SeenSet) Len() int {
	return len(s.ids)
}
