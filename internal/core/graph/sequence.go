package graph

import (
	"strconv"
	"sync"
)

// Sequence hands out node ids of the form "n<k>". It is owned by a session
// and must be resynced after loading persisted nodes.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence starts a sequence at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next id and advances the counter.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "n" + strconv.Itoa(s.next)
	s.next++
	return id
}

// Peek returns the counter without advancing it.
func (s *Sequence) Peek() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Resync moves the counter one past the highest numeric suffix among the
// given nodes, or to 0 when none carries one.
func (s *Sequence) Resync(nodes []*Node) {
	maxID := maxSuffix(nodes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = maxID + 1
}

// Advance moves the counter past the given nodes but never backwards, so
// ids already handed out are not reissued.
func (s *Sequence) Advance(nodes []*Node) {
	maxID := maxSuffix(nodes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = max(s.next, maxID+1)
}

func maxSuffix(nodes []*Node) int {
	maxID := -1
	for _, n := range nodes {
		if k, ok := numericSuffix(n.ID); ok && k > maxID {
			maxID = k
		}
	}
	return maxID
}

// numericSuffix reads the leading digits after the first character, so
// "n12" yields 12 and "n3-copy" yields 3.
func numericSuffix(id string) (int, bool) {
	if len(id) < 2 {
		return 0, false
	}
	end := 1
	for end < len(id) && id[end] >= '0' && id[end] <= '9' {
		end++
	}
	if end == 1 {
		return 0, false
	}
	k, err := strconv.Atoi(id[1:end])
	if err != nil {
		return 0, false
	}
	return k, true
}
