package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

// OperatorStore operadores indexados por login.
type OperatorStore struct {
	mu      sync.RWMutex
	byLogin map[string]entity.Operator
}

// NewOperatorStore crea el almacén vacío.
func NewOperatorStore() *OperatorStore {
	return &OperatorStore{byLogin: make(map[string]entity.Operator)}
}

var _ repository.OperatorRepository = (*OperatorStore)(nil)

func (s *OperatorStore) Create(_ context.Context, op *entity.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byLogin[op.Login]; ok {
		return domain.ErrLoginTaken
	}
	s.byLogin[op.Login] = *op
	return nil
}

func (s *OperatorStore) GetByLogin(_ context.Context, login string) (*entity.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.byLogin[login]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

// Deactivate marca el operador como inactivo.
func (s *OperatorStore) Deactivate(login string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.byLogin[login]; ok {
		op.Active = false
		s.byLogin[login] = op
	}
}
