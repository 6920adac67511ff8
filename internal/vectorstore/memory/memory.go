package memory

import (
	"context"
	"fmt"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage keeps indexes in process memory. Contents are lost on exit.
type Storage struct {
	mu      sync.RWMutex
	indexes map[string]*domain.Index
}

func NewStorage() *Storage {
	return &Storage{indexes: make(map[string]*domain.Index)}
}

func (s *Storage) Save(ctx context.Context, key string, index *domain.Index) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	if err := index.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[key] = vectorstore.Clone(index)
	return nil
}

func (s *Storage) Load(ctx context.Context, key string) (*domain.Index, error) {
	if err := vectorstore.ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, key)
	}
	return vectorstore.Clone(idx), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, key)
	return nil
}
