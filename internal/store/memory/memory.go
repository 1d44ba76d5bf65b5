package memory

import (
	"context"
	"sync"

	"fuelshift/backend/internal/store"
)

type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	doc := make([]byte, len(value))
	copy(doc, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = doc
	return nil
}
