package persistence

import (
	"context"
	"sync"
	"time"

	"post-planner/domain/model"
	"post-planner/domain/repository"
)

// PendingStateMemory keeps authorization states in process memory only; a
// restart drops them and forces users to authorize again.
type PendingStateMemory struct {
	mu     sync.Mutex
	states map[string]pendingEntry
	now    func() time.Time
}

type pendingEntry struct {
	state    model.PendingAuthorizationState
	expireAt time.Time
}

var _ repository.IPendingState = (*PendingStateMemory)(nil)

func NewPendingStateMemory() *PendingStateMemory {
	return &PendingStateMemory{states: map[string]pendingEntry{}, now: time.Now}
}

// WithClock replaces the clock used to sweep expired entries.
func (s *PendingStateMemory) WithClock(now func() time.Time) *PendingStateMemory {
	s.now = now
	return s
}

// Put stores st. Entries are kept for twice the ttl so the caller can still tell
// an expired state apart from an unknown one; older entries are swept here.
func (s *PendingStateMemory) Put(_ context.Context, st *model.PendingAuthorizationState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.states {
		if now.After(e.expireAt) {
			delete(s.states, k)
		}
	}
	s.states[st.State] = pendingEntry{state: *st, expireAt: st.CreatedAt.Add(2 * ttl)}
	return nil
}

func (s *PendingStateMemory) Take(_ context.Context, state string) (*model.PendingAuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[state]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.states, state)
	st := e.state
	return &st, nil
}

// Len reports the number of tracked states.
func (s *PendingStateMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
