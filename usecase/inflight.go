package usecase

import "sync"

// inFlight is the set of post ids currently being mutated. The scheduler holds
// an id for the whole send; user edits hold it only while they write.
type inFlight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{ids: map[string]struct{}{}}
}

// acquire marks id busy and reports false if someone else already holds it.
func (s *inFlight) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *inFlight) release(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *inFlight) held(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
