package statestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-instance
// deployments without Redis.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]time.Time)}
}

func (s *MemoryStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Abandoned states are never consumed, so sweep them here to keep the
	// map bounded in long-lived processes.
	now := time.Now()
	for k, expiresAt := range s.states {
		if now.After(expiresAt) {
			delete(s.states, k)
		}
	}

	s.states[state] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.states[state]
	if !ok {
		return ErrNotFound
	}
	delete(s.states, state)

	if time.Now().After(expiresAt) {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
