package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

// SequenceStore es el contador en memoria; el incremento ocurre bajo el mutex.
type SequenceStore struct {
	mu       sync.Mutex
	counters map[entity.SequenceKey]int64
}

// NewSequenceStore crea el contador vacío.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{counters: make(map[entity.SequenceKey]int64)}
}

var _ repository.SequenceRepository = (*SequenceStore)(nil)

func (s *SequenceStore) Next(_ context.Context, key entity.SequenceKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *SequenceStore) Current(_ context.Context, key entity.SequenceKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *SequenceStore) Seed(_ context.Context, key entity.SequenceKey, last int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[key]; !ok {
		s.counters[key] = last
	}
	return nil
}
