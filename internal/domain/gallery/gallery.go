// Package gallery holds the illustrations fetched for a story session.
package gallery

import "sync"

// Sequence is an append-only list of image references with a browsing cursor.
// The cursor is a valid index whenever the sequence is non-empty.
type Sequence struct {
	mu     sync.RWMutex
	images []string
	index  int
}

func New() *Sequence {
	return &Sequence{}
}

// Append adds ref and moves the cursor onto it.
func (s *Sequence) Append(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.images = append(s.images, ref)
	s.index = len(s.images) - 1
	return s.index
}

// Current returns the image under the cursor.
func (s *Sequence) Current() (ref string, index int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.images) == 0 {
		return "", 0, false
	}
	return s.images[s.index], s.index, true
}

// Prev moves the cursor back one image, stopping at the first.
func (s *Sequence) Prev() (string, int, bool) {
	s.mu.Lock()
	if s.index > 0 {
		s.index--
	}
	s.mu.Unlock()
	return s.Current()
}

// Next moves the cursor forward one image, stopping at the last.
func (s *Sequence) Next() (string, int, bool) {
	s.mu.Lock()
	if s.index < len(s.images)-1 {
		s.index++
	}
	s.mu.Unlock()
	return s.Current()
}

func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

func (s *Sequence) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.images))
	copy(out, s.images)
	return out
}
