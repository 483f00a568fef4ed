package repository

import (
	"context"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// OperatorRepository persiste los operadores del PDV.
type OperatorRepository interface {
	// Create devuelve domain.ErrLoginTaken si el login ya existe.
	Create(ctx context.Context, op *entity.Operator) error
	// GetByLogin devuelve (nil, nil) si no existe.
	GetByLogin(ctx context.Context, login string) (*entity.Operator, error)
}
