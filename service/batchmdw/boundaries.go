package batchmdw

import (
	"github.com/google/uuid"
)

const (
	// BatchBoundaryPrefix prefixes the boundary of the top-level response region
	BatchBoundaryPrefix = "batch_"
	// ChangeSetBoundaryPrefix prefixes the boundaries of nested response regions
	ChangeSetBoundaryPrefix = "changeset_"
)

// BoundaryStack tracks the boundary of every multipart region currently
// open in a response, the most recently pushed boundary framing the
// region being written. It also remembers every token it has issued so
// no two regions of a response, or a response region and any region of
// the request it answers, share a boundary.
type BoundaryStack struct {
	tokens []string
	issued map[string]struct{}
}

// NewBoundaryStack creates an empty stack that will never issue any of the reserved tokens
func NewBoundaryStack(reserved ...string) *BoundaryStack {
	issued := make(map[string]struct{}, len(reserved))
	for _, token := range reserved {
		issued[token] = struct{}{}
	}

	return &BoundaryStack{
		issued: issued,
	}
}

// Generate returns a fresh token starting with prefix
func (s *BoundaryStack) Generate(prefix string) string {
	for {
		token := prefix + uuid.New().String()
		if _, used := s.issued[token]; used {
			continue
		}

		s.issued[token] = struct{}{}

		return token
	}
}

// Push makes token the boundary of the active region
func (s *BoundaryStack) Push(token string) {
	s.tokens = append(s.tokens, token)
}

// Pop removes and returns the boundary of the active region.
// Popping an empty stack means push and pop calls were not paired and panics.
func (s *BoundaryStack) Pop() string {
	token := s.Current()
	s.tokens = s.tokens[:len(s.tokens)-1]
	return token
}

// Current returns the boundary of the active region, panicking if no region is open
func (s *BoundaryStack) Current() string {
	if len(s.tokens) == 0 {
		panic("batchmdw: boundary stack is empty")
	}
	return s.tokens[len(s.tokens)-1]
}

// Depth returns the number of open regions
func (s *BoundaryStack) Depth() int {
	return len(s.tokens)
}
