package transmitter

import "sync"

// Store holds the last transmitted driver value and the exact payload that
// carried it. It starts invalid and never goes back to invalid.
type Store struct {
	mu      sync.Mutex
	value   float64
	valid   bool
	payload []byte
}

func NewStore() *Store {
	return &Store{}
}

// Last returns the last committed driver value and whether one exists.
func (s *Store) Last() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.valid
}

// Payload returns a copy of the payload retained at the last commit.
func (s *Store) Payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.payload)
}

// Commit records value as transmitted and keeps its own copy of payload.
func (s *Store) Commit(value float64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(value, payload)
}

func (s *Store) commitLocked(value float64, payload []byte) {
	s.value = value
	s.valid = true
	s.payload = clone(payload)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
