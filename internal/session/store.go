package session

import (
	"context"
	"sync"
)

// Store persists sessions by ID. Get returns (nil, nil) for an unknown ID;
// the caller decides whether to start a fresh session.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, id string, sess *Session) error
}

// MemoryStore is a process-local Store for tests and development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id], nil
}

func (s *MemoryStore) Put(_ context.Context, id string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
	return nil
}
