// Package unlock tracks a remote-control key sequence that reveals hidden
// host settings.
package unlock

import (
	"slices"
	"sync"
)

// DefaultCodes is up, up, right, right, down, down, up.
var DefaultCodes = []int{38, 38, 39, 39, 40, 40, 38}

// Sequence matches key codes against a fixed code list. A mismatching key
// resets progress to the start; it is not re-tested as a first key.
type Sequence struct {
	mu    sync.Mutex
	codes []int
	pos   int
}

// NewSequence returns a matcher for codes; empty codes means DefaultCodes.
func NewSequence(codes []int) *Sequence {
	if len(codes) == 0 {
		codes = DefaultCodes
	}
	return &Sequence{codes: slices.Clone(codes)}
}

// Feed consumes one key code and reports whether it completed the sequence.
// Completion resets progress so the sequence can be entered again.
func (s *Sequence) Feed(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code != s.codes[s.pos] {
		s.pos = 0
		return false
	}
	s.pos++
	if s.pos == len(s.codes) {
		s.pos = 0
		return true
	}
	return false
}

// Progress returns how many codes of the sequence have been matched.
func (s *Sequence) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
